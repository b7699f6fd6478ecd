// Package burg implements local Burg prediction error filtering of images.
//
// Reflection coefficients are estimated order by order with a Burg
// lattice along axis 1, using Gaussian-smoothed local correlations of the
// forward and backward prediction errors instead of global sums, so every
// pixel gets its own coefficients. The per-pixel reflection coefficients are
// stepped up into direct-form forward and backward predictors, which the
// whitening (forward) and synthesis (inverse) recursions then reuse.
//
// Samples before the start or past the end of an axis-1 line are treated
// as zero everywhere: in estimation, whitening and synthesis. Because the
// inverse reuses the stored coefficients and the same boundary rule,
// ApplyInverse(c, ApplyForward(c, x)) reproduces x up to rounding.
//
// ApplyQuarterPlane and its forward and inverse passes offer a 2-D
// alternative that predicts each pixel from its neighbours along both i1
// and i2. It keeps two reflection coefficients per pixel and stage and has
// no direct-form step-up.
package burg

import (
	"fmt"
	"math"

	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/localstats"
	"github.com/banshee-data/localburg/internal/monitoring"
)

// DefaultMaxReflection bounds |kappa| so the synthesis filter stays stable.
const DefaultMaxReflection = 0.999

// Filter estimates and applies local Burg prediction error filters.
type Filter struct {
	sigma   float64
	cmax    float64
	workers int
	lcf     *localstats.Engine
}

// Option configures a Filter.
type Option func(*Filter)

// WithWorkers limits the goroutines used per pass. Values <= 0 select
// runtime.GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(f *Filter) { f.workers = n }
}

// WithMaxReflection sets the reflection coefficient clip level, which must
// lie in (0, 1].
func WithMaxReflection(c float64) Option {
	return func(f *Filter) { f.cmax = c }
}

// New returns a filter whose local statistics use Gaussian scale sigma.
func New(sigma float64, opts ...Option) (*Filter, error) {
	f := &Filter{sigma: sigma, cmax: DefaultMaxReflection}
	for _, opt := range opts {
		opt(f)
	}
	if !(f.cmax > 0 && f.cmax <= 1) {
		return nil, fmt.Errorf("%w: max reflection must be in (0, 1], got %g",
			grid.ErrInvalidParameter, f.cmax)
	}
	lcf, err := localstats.New(sigma, localstats.WithWorkers(f.workers))
	if err != nil {
		return nil, err
	}
	f.lcf = lcf
	return f, nil
}

// Sigma returns the smoothing scale of the local statistics.
func (f *Filter) Sigma() float64 { return f.sigma }

// EstimateCoefficients returns the local coefficient field of the given
// order for g.
func (f *Filter) EstimateCoefficients(g *grid.Grid, order int) (*CoefficientField, error) {
	c, _, err := f.estimate(g, order)
	return c, err
}

// Q1Result is the output of ApplyQ1.
type Q1Result struct {
	// Residual is the lattice prediction error of the final order.
	Residual *grid.Grid
	// Coefficients is the field to reuse with ApplyForward and ApplyInverse.
	Coefficients *CoefficientField
}

// ApplyQ1 estimates coefficients and returns them together with the
// lattice prediction error computed during estimation.
func (f *Filter) ApplyQ1(g *grid.Grid, order int) (*Q1Result, error) {
	c, r, err := f.estimate(g, order)
	if err != nil {
		return nil, err
	}
	return &Q1Result{Residual: r, Coefficients: c}, nil
}

func (f *Filter) estimate(g *grid.Grid, order int) (*CoefficientField, *grid.Grid, error) {
	if g == nil {
		return nil, nil, fmt.Errorf("%w: nil grid", grid.ErrInvalidParameter)
	}
	if order <= 0 {
		return nil, nil, fmt.Errorf("%w: order must be positive, got %d", grid.ErrInvalidParameter, order)
	}
	s := g.Shape()
	if s.N1 < order+1 {
		return nil, nil, fmt.Errorf("%w: %d samples along axis 1, order %d needs at least %d",
			grid.ErrInvalidParameter, s.N1, order, order+1)
	}

	c := newField(order, s)
	n := s.Len()
	fk := g.Clone()
	bk := g.Clone()
	for k := 1; k <= order; k++ {
		bs := shiftDown(bk)
		fb, err := f.lcf.Correlate(fk, bs, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("order %d: %w", k, err)
		}
		ff, err := f.lcf.Correlate(fk, fk, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("order %d: %w", k, err)
		}
		bb, err := f.lcf.Correlate(bs, bs, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("order %d: %w", k, err)
		}

		kappa := c.Reflection[(k-1)*n : k*n]
		fd, bd, sd := fk.Data(), bk.Data(), bs.Data()
		for i := range kappa {
			num := 2 * float64(fb.Data()[i])
			den := float64(ff.Data()[i]) + float64(bb.Data()[i])
			var ck float64
			if den != 0 {
				ck = num / den
			}
			kappa[i] = float32(f.stabilize(c, ck))
			ck = float64(kappa[i])

			fi, bi := float64(fd[i]), float64(sd[i])
			fd[i] = float32(fi - ck*bi)
			bd[i] = float32(bi - ck*fi)
		}
	}

	if err := grid.Parallel(s.Lines(), f.workers, func(lo, hi int) error {
		stepUp(c, lo*s.N1, hi*s.N1)
		return nil
	}); err != nil {
		return nil, nil, err
	}

	if c.Clipped > 0 || c.NonFinite > 0 {
		monitoring.Logf("burg: %v: order %d %s: clipped %d reflection coefficients to ±%g, zeroed %d non-finite",
			ErrNumericalInstability, order, s, c.Clipped, f.cmax, c.NonFinite)
	}
	return c, fk, nil
}

// stabilize clips ck into [-cmax, cmax] and replaces non-finite values.
func (f *Filter) stabilize(c *CoefficientField, ck float64) float64 {
	switch {
	case math.IsNaN(ck) || math.IsInf(ck, 0):
		c.NonFinite++
		return 0
	case ck > f.cmax:
		c.Clipped++
		return f.cmax
	case ck < -f.cmax:
		c.Clipped++
		return -f.cmax
	}
	return ck
}

// shiftDown returns b(x-1) along axis 1 with a zero first sample.
func shiftDown(b *grid.Grid) *grid.Grid {
	out := b.Clone()
	for j := 0; j < b.Shape().Lines(); j++ {
		src, dst := b.Line(j), out.Line(j)
		copy(dst[1:], src[:len(src)-1])
		dst[0] = 0
	}
	return out
}

// stepUp converts the reflection coefficients of pixels [lo, hi) into
// forward and backward predictors:
//
//	a_k = a_{k-1} - kappa_k * reverse(b_{k-1})
//	b_k = b_{k-1} - kappa_k * reverse(a_{k-1})
//
// with a_k[k] = b_k[k] = kappa_k.
func stepUp(c *CoefficientField, lo, hi int) {
	p := c.Order
	n := c.Shape.Len()
	a := make([]float64, p+1)
	b := make([]float64, p+1)
	ta := make([]float64, p+1)
	tb := make([]float64, p+1)
	for i := lo; i < hi; i++ {
		for k := 1; k <= p; k++ {
			kk := float64(c.Reflection[(k-1)*n+i])
			for m := 1; m < k; m++ {
				ta[m] = a[m] - kk*b[k-m]
				tb[m] = b[m] - kk*a[k-m]
			}
			ta[k], tb[k] = kk, kk
			copy(a[1:k+1], ta[1:k+1])
			copy(b[1:k+1], tb[1:k+1])
		}
		for k := 1; k <= p; k++ {
			c.Forward[(k-1)*n+i] = float32(a[k])
			c.Backward[(k-1)*n+i] = float32(b[k])
		}
	}
}

// ApplyForward returns the prediction residual
// r(x) = g(x) - sum_k a_k(x) g(x-k) using the stored coefficients.
func (f *Filter) ApplyForward(c *CoefficientField, g *grid.Grid) (*grid.Grid, error) {
	if err := c.checkGrid(g); err != nil {
		return nil, err
	}
	out := g.Clone()
	p, n, n1 := c.Order, c.Shape.Len(), c.Shape.N1
	err := grid.Parallel(c.Shape.Lines(), f.workers, func(lo, hi int) error {
		for j := lo; j < hi; j++ {
			x, y := g.Line(j), out.Line(j)
			base := j * n1
			for i1 := 0; i1 < n1; i1++ {
				idx := base + i1
				r := float64(x[i1])
				for k := 1; k <= min(p, i1); k++ {
					r -= float64(c.Forward[(k-1)*n+idx]) * float64(x[i1-k])
				}
				y[i1] = float32(r)
			}
		}
		return nil
	})
	return out, err
}

// ApplyInverse reconstructs g from the residual r by the recursion
// g(x) = r(x) + sum_k a_k(x) g(x-k), scanning each axis-1 line forward.
// The recursion runs on the stored float32 samples, mirroring ApplyForward,
// so rounding in the residual does not accumulate along the line.
func (f *Filter) ApplyInverse(c *CoefficientField, r *grid.Grid) (*grid.Grid, error) {
	if err := c.checkGrid(r); err != nil {
		return nil, err
	}
	out := r.Clone()
	p, n, n1 := c.Order, c.Shape.Len(), c.Shape.N1
	err := grid.Parallel(c.Shape.Lines(), f.workers, func(lo, hi int) error {
		for j := lo; j < hi; j++ {
			x, y := r.Line(j), out.Line(j)
			base := j * n1
			for i1 := 0; i1 < n1; i1++ {
				idx := base + i1
				v := float64(x[i1])
				for k := 1; k <= min(p, i1); k++ {
					v += float64(c.Forward[(k-1)*n+idx]) * float64(y[i1-k])
				}
				y[i1] = float32(v)
			}
		}
		return nil
	})
	return out, err
}

// ApplyBackward returns the anti-causal residual
// r(x) = g(x) - sum_k b_k(x) g(x+k).
func (f *Filter) ApplyBackward(c *CoefficientField, g *grid.Grid) (*grid.Grid, error) {
	if err := c.checkGrid(g); err != nil {
		return nil, err
	}
	out := g.Clone()
	p, n, n1 := c.Order, c.Shape.Len(), c.Shape.N1
	err := grid.Parallel(c.Shape.Lines(), f.workers, func(lo, hi int) error {
		for j := lo; j < hi; j++ {
			x, y := g.Line(j), out.Line(j)
			base := j * n1
			for i1 := 0; i1 < n1; i1++ {
				idx := base + i1
				r := float64(x[i1])
				for k := 1; k <= min(p, n1-1-i1); k++ {
					r -= float64(c.Backward[(k-1)*n+idx]) * float64(x[i1+k])
				}
				y[i1] = float32(r)
			}
		}
		return nil
	})
	return out, err
}

// ApplyBackwardInverse inverts ApplyBackward, scanning each axis-1 line
// from its last sample to its first.
func (f *Filter) ApplyBackwardInverse(c *CoefficientField, r *grid.Grid) (*grid.Grid, error) {
	if err := c.checkGrid(r); err != nil {
		return nil, err
	}
	out := r.Clone()
	p, n, n1 := c.Order, c.Shape.Len(), c.Shape.N1
	err := grid.Parallel(c.Shape.Lines(), f.workers, func(lo, hi int) error {
		for j := lo; j < hi; j++ {
			x, y := r.Line(j), out.Line(j)
			base := j * n1
			for i1 := n1 - 1; i1 >= 0; i1-- {
				idx := base + i1
				v := float64(x[i1])
				for k := 1; k <= min(p, n1-1-i1); k++ {
					v += float64(c.Backward[(k-1)*n+idx]) * float64(y[i1+k])
				}
				y[i1] = float32(v)
			}
		}
		return nil
	})
	return out, err
}

// ApplyQ1 estimates an order-p field for g with smoothing scale sigma and
// returns the lattice residual together with the field.
func ApplyQ1(order int, g *grid.Grid, sigma float64) (*grid.Grid, *CoefficientField, error) {
	f, err := New(sigma)
	if err != nil {
		return nil, nil, err
	}
	res, err := f.ApplyQ1(g, order)
	if err != nil {
		return nil, nil, err
	}
	return res.Residual, res.Coefficients, nil
}
