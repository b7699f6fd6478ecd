package burg

import (
	"fmt"
	"math"

	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/monitoring"
)

// singularTol is the relative pivot below which the 2x2 normal equations
// of a quarter-plane stage are treated as rank deficient.
const singularTol = 1e-9

// QuarterPlaneField holds the reflection coefficients of a 2-D
// quarter-plane lattice. At stage k every pixel has two coefficients:
// C1 pairs with the neighbour at i1-1 and C2 with the neighbour at i2-1.
// Both sets use the CoefficientField layout, (k-1)*N + i.
type QuarterPlaneField struct {
	Order int
	Shape grid.Shape
	C1    []float32
	C2    []float32

	// Clipped counts pixels whose pair was scaled back to |c1|+|c2| = cmax.
	Clipped int
	// NonFinite counts pixels whose pair was replaced by zero.
	NonFinite int
}

// C1At returns c1_k at flat grid index i.
func (q *QuarterPlaneField) C1At(k, i int) float32 { return q.C1[(k-1)*q.Shape.Len()+i] }

// C2At returns c2_k at flat grid index i.
func (q *QuarterPlaneField) C2At(k, i int) float32 { return q.C2[(k-1)*q.Shape.Len()+i] }

// Validate checks the layout and that every pair satisfies |c1|+|c2| <= 1.
func (q *QuarterPlaneField) Validate() error {
	if err := q.checkLayout(); err != nil {
		return err
	}
	n := q.Shape.Len()
	for i := range q.C1 {
		a, b := float64(q.C1[i]), float64(q.C2[i])
		if math.IsNaN(a) || math.IsNaN(b) || math.Abs(a)+math.Abs(b) > 1 {
			return fmt.Errorf("%w: quarter-plane pair (%g, %g) at order %d index %d",
				ErrNumericalInstability, a, b, i/n+1, i%n)
		}
	}
	return nil
}

func (q *QuarterPlaneField) checkLayout() error {
	if q == nil {
		return fmt.Errorf("%w: nil quarter-plane field", grid.ErrInvalidParameter)
	}
	if q.Order <= 0 {
		return fmt.Errorf("%w: order must be positive, got %d", grid.ErrInvalidParameter, q.Order)
	}
	if err := q.Shape.Validate(); err != nil {
		return err
	}
	if n := q.Order * q.Shape.Len(); len(q.C1) != n || len(q.C2) != n {
		return fmt.Errorf("%w: quarter-plane sets have %d/%d values, want %d",
			grid.ErrShapeMismatch, len(q.C1), len(q.C2), n)
	}
	return nil
}

func (q *QuarterPlaneField) checkGrid(g *grid.Grid) error {
	if err := q.checkLayout(); err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("%w: nil grid", grid.ErrInvalidParameter)
	}
	if g.Shape() != q.Shape {
		return fmt.Errorf("%w: coefficients %s vs grid %s", grid.ErrShapeMismatch, q.Shape, g.Shape())
	}
	return nil
}

// QuarterPlaneResult is the output of ApplyQuarterPlane.
type QuarterPlaneResult struct {
	Residual     *grid.Grid
	Coefficients *QuarterPlaneField
}

// ApplyQuarterPlane estimates a quarter-plane lattice of the given order
// and returns its coefficients with the final forward prediction error.
//
// Stage k updates the errors of every pixel from its neighbours at i1-1,
// i2-1 and the diagonal, zero outside the grid:
//
//	f_k = f - c1*b(i1-1) - c2*b(i2-1)
//	b_k = b(i1-1, i2-1) - c2*f(i2-1) - c1*f(i1-1)
//
// (c1, c2) solves the 2x2 normal equations minimising the smoothed sum of
// both squared errors. Pairs with |c1|+|c2| above the clip level are
// scaled back onto it. Each i3 slice is an independent 2-D lattice; only
// the local statistics are smoothed across slices.
func (f *Filter) ApplyQuarterPlane(g *grid.Grid, order int) (*QuarterPlaneResult, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil grid", grid.ErrInvalidParameter)
	}
	if order <= 0 {
		return nil, fmt.Errorf("%w: order must be positive, got %d", grid.ErrInvalidParameter, order)
	}
	s := g.Shape()
	q := &QuarterPlaneField{
		Order: order,
		Shape: s,
		C1:    make([]float32, order*s.Len()),
		C2:    make([]float32, order*s.Len()),
	}

	n := s.Len()
	fk, bk := g.Clone(), g.Clone()
	for k := 1; k <= order; k++ {
		st, err := f.stageStats(fk, bk)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", k, err)
		}
		c1, c2 := q.C1[(k-1)*n:k*n], q.C2[(k-1)*n:k*n]
		for i := range c1 {
			a, b := f.solvePair(q, st.a11[i], st.a12[i], st.a22[i], st.r1[i], st.r2[i])
			c1[i], c2[i] = float32(a), float32(b)
		}
		if fk, bk, err = f.quarterStage(c1, c2, fk, bk); err != nil {
			return nil, err
		}
	}

	if q.Clipped > 0 || q.NonFinite > 0 {
		monitoring.Logf("burg: %v: quarter-plane order %d %s: scaled %d coefficient pairs to %g, zeroed %d non-finite",
			ErrNumericalInstability, order, s, q.Clipped, f.cmax, q.NonFinite)
	}
	return &QuarterPlaneResult{Residual: fk, Coefficients: q}, nil
}

// quarterStats holds the smoothed normal-equation terms of one stage.
type quarterStats struct {
	a11, a12, a22, r1, r2 []float32
}

func (f *Filter) stageStats(fk, bk *grid.Grid) (*quarterStats, error) {
	s := fk.Shape()
	terms := make([]*grid.Grid, 5)
	for i := range terms {
		terms[i] = fk.Clone()
	}
	p11, p12, p22, q1, q2 := terms[0].Data(), terms[1].Data(), terms[2].Data(), terms[3].Data(), terms[4].Data()
	fd, bd := fk.Data(), bk.Data()
	err := grid.Parallel(s.Lines(), f.workers, func(lo, hi int) error {
		for j := lo; j < hi; j++ {
			i2 := j % s.N2
			for i1 := 0; i1 < s.N1; i1++ {
				idx := j*s.N1 + i1
				b1, b2, bdiag := neighbours(bd, s, i1, i2, idx)
				f1, f2, _ := neighbours(fd, s, i1, i2, idx)
				fi := float64(fd[idx])
				p11[idx] = float32(b1*b1 + f1*f1)
				p12[idx] = float32(b1*b2 + f1*f2)
				p22[idx] = float32(b2*b2 + f2*f2)
				q1[idx] = float32(fi*b1 + bdiag*f1)
				q2[idx] = float32(fi*b2 + bdiag*f2)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, t := range terms {
		if terms[i], err = f.lcf.Smooth(t); err != nil {
			return nil, err
		}
	}
	return &quarterStats{
		a11: terms[0].Data(), a12: terms[1].Data(), a22: terms[2].Data(),
		r1: terms[3].Data(), r2: terms[4].Data(),
	}, nil
}

// solvePair solves [a11 a12; a12 a22][c1 c2]' = [r1 r2]' by Cholesky
// factorisation, falling back to a single coefficient when the system is
// rank deficient, then stabilises the pair.
func (f *Filter) solvePair(q *QuarterPlaneField, a11f, a12f, a22f, r1f, r2f float32) (float64, float64) {
	a11, a12, a22 := float64(a11f), float64(a12f), float64(a22f)
	r1, r2 := float64(r1f), float64(r2f)

	var c1, c2 float64
	switch {
	case a11 > 0:
		l11 := math.Sqrt(a11)
		l21 := a12 / l11
		d22 := a22 - l21*l21
		if d22 > singularTol*a22 {
			l22 := math.Sqrt(d22)
			v1 := r1 / l11
			v2 := (r2 - l21*v1) / l22
			c2 = v2 / l22
			c1 = (v1 - l21*c2) / l11
		} else {
			c1 = r1 / a11
		}
	case a22 > 0:
		c2 = r2 / a22
	}

	if math.IsNaN(c1) || math.IsInf(c1, 0) || math.IsNaN(c2) || math.IsInf(c2, 0) {
		q.NonFinite++
		return 0, 0
	}
	if ca := math.Abs(c1) + math.Abs(c2); ca > f.cmax {
		q.Clipped++
		cs := f.cmax / ca
		c1 *= cs
		c2 *= cs
	}
	return c1, c2
}

// quarterStage applies one lattice stage to the errors of every pixel.
func (f *Filter) quarterStage(c1, c2 []float32, fk, bk *grid.Grid) (*grid.Grid, *grid.Grid, error) {
	s := fk.Shape()
	fn, bn := fk.Clone(), bk.Clone()
	fd, bd := fk.Data(), bk.Data()
	fo, bo := fn.Data(), bn.Data()
	err := grid.Parallel(s.Lines(), f.workers, func(lo, hi int) error {
		for j := lo; j < hi; j++ {
			i2 := j % s.N2
			for i1 := 0; i1 < s.N1; i1++ {
				idx := j*s.N1 + i1
				k1, k2 := float64(c1[idx]), float64(c2[idx])
				b1, b2, bdiag := neighbours(bd, s, i1, i2, idx)
				f1, f2, _ := neighbours(fd, s, i1, i2, idx)
				fo[idx] = float32(float64(fd[idx]) - k1*b1 - k2*b2)
				bo[idx] = float32(bdiag - k2*f2 - k1*f1)
			}
		}
		return nil
	})
	return fn, bn, err
}

// neighbours returns v at (i1-1, i2), (i1, i2-1) and (i1-1, i2-1) of the
// sample at idx, zero outside the slice.
func neighbours(v []float32, s grid.Shape, i1, i2, idx int) (v1, v2, vd float64) {
	if i1 > 0 {
		v1 = float64(v[idx-1])
	}
	if i2 > 0 {
		v2 = float64(v[idx-s.N1])
		if i1 > 0 {
			vd = float64(v[idx-s.N1-1])
		}
	}
	return v1, v2, vd
}

// ApplyQuarterPlaneForward runs the stored lattice over g and returns the
// final forward prediction error. With the coefficients estimated for g it
// reproduces ApplyQuarterPlane's residual exactly.
func (f *Filter) ApplyQuarterPlaneForward(q *QuarterPlaneField, g *grid.Grid) (*grid.Grid, error) {
	if err := q.checkGrid(g); err != nil {
		return nil, err
	}
	n := q.Shape.Len()
	fk, bk := g.Clone(), g.Clone()
	for k := 1; k <= q.Order; k++ {
		var err error
		fk, bk, err = f.quarterStage(q.C1[(k-1)*n:k*n], q.C2[(k-1)*n:k*n], fk, bk)
		if err != nil {
			return nil, err
		}
	}
	return fk, nil
}

// ApplyQuarterPlaneInverse reconstructs g from the residual r. Each i3
// slice is scanned in raster order; at every pixel the forward errors are
// unwound from the last stage to the first, then the backward errors are
// rebuilt for the pixels that follow.
func (f *Filter) ApplyQuarterPlaneInverse(q *QuarterPlaneField, r *grid.Grid) (*grid.Grid, error) {
	if err := q.checkGrid(r); err != nil {
		return nil, err
	}
	s, m := q.Shape, q.Order
	n, plane := s.Len(), s.N1*s.N2
	out := r.Clone()
	rd, od := r.Data(), out.Data()
	err := grid.Parallel(s.N3, f.workers, func(lo, hi int) error {
		fs := make([][]float32, m+1)
		bs := make([][]float32, m+1)
		for k := range fs {
			fs[k] = make([]float32, plane)
			bs[k] = make([]float32, plane)
		}
		for i3 := lo; i3 < hi; i3++ {
			base := i3 * plane
			for i2 := 0; i2 < s.N2; i2++ {
				for i1 := 0; i1 < s.N1; i1++ {
					p := i1 + s.N1*i2
					idx := base + p
					fs[m][p] = rd[idx]
					for k := m; k >= 1; k-- {
						o := (k-1)*n + idx
						b1, b2, _ := neighbours(bs[k-1], s, i1, i2, p)
						fs[k-1][p] = float32(float64(fs[k][p]) +
							float64(q.C1[o])*b1 + float64(q.C2[o])*b2)
					}
					od[idx] = fs[0][p]
					bs[0][p] = fs[0][p]
					for k := 1; k <= m; k++ {
						o := (k-1)*n + idx
						f1, f2, _ := neighbours(fs[k-1], s, i1, i2, p)
						_, _, bdiag := neighbours(bs[k-1], s, i1, i2, p)
						bs[k][p] = float32(bdiag - float64(q.C2[o])*f2 - float64(q.C1[o])*f1)
					}
				}
			}
		}
		return nil
	})
	return out, err
}
