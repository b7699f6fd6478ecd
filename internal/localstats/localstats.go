// Package localstats computes spatially smoothed local statistics over
// grids: Gaussian smoothing and local (lagged) correlations.
//
// Smoothing is separable and zero-lag. Near the grid edges the kernel is
// truncated and its weights renormalised over the in-bounds samples, so a
// constant grid is returned unchanged. Lagged products treat samples
// outside the grid as zero.
//
// LocalAutocorrelation is the entry point for callers that want the local
// correlation function of an image itself; the Burg lattice correlates its
// prediction errors through Correlate and Smooth directly.
package localstats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/localburg/internal/grid"
)

// kernelRadius is the half-width of the truncated Gaussian in units of sigma.
const kernelRadius = 4.0

// Engine smooths grids with a fixed Gaussian scale.
type Engine struct {
	sigma   float64
	weights []float64 // weights[j] for offset ±j, normalised over the full window
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers limits the number of goroutines used per smoothing pass.
// Values <= 0 select runtime.GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New returns an engine smoothing with Gaussian scale sigma.
func New(sigma float64, opts ...Option) (*Engine, error) {
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: smoothing scale must be positive, got %g",
			grid.ErrInvalidParameter, sigma)
	}
	e := &Engine{sigma: sigma, weights: gaussianWeights(sigma)}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Sigma returns the smoothing scale.
func (e *Engine) Sigma() float64 { return e.sigma }

// Radius returns the kernel half-width in samples.
func (e *Engine) Radius() int { return len(e.weights) - 1 }

func gaussianWeights(sigma float64) []float64 {
	h := int(math.Ceil(kernelRadius * sigma))
	if h < 1 {
		h = 1
	}
	w := make([]float64, h+1)
	s := -0.5 / (sigma * sigma)
	for j := range w {
		w[j] = math.Exp(s * float64(j*j))
	}
	// Normalise so the full symmetric window sums to one.
	total := 2*floats.Sum(w) - w[0]
	floats.Scale(1/total, w)
	return w
}

// Smooth applies the Gaussian along every axis of g whose length exceeds one.
func (e *Engine) Smooth(g *grid.Grid) (*grid.Grid, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil grid", grid.ErrInvalidParameter)
	}
	out := g.Clone()
	s := g.Shape()
	tmp := make([]float32, g.Len())
	for axis, n := range []int{s.N1, s.N2, s.N3} {
		if n <= 1 {
			continue
		}
		if err := e.smoothAxis(out.Data(), tmp, s, axis); err != nil {
			return nil, err
		}
		copy(out.Data(), tmp)
	}
	return out, nil
}

// smoothAxis smooths src along one axis into dst.
func (e *Engine) smoothAxis(src, dst []float32, s grid.Shape, axis int) error {
	var n, stride, count int
	var base func(j int) int
	switch axis {
	case 0:
		n, stride, count = s.N1, 1, s.N2*s.N3
		base = func(j int) int { return j * s.N1 }
	case 1:
		n, stride, count = s.N2, s.N1, s.N1*s.N3
		base = func(j int) int { return j%s.N1 + s.N1*s.N2*(j/s.N1) }
	default:
		n, stride, count = s.N3, s.N1*s.N2, s.N1*s.N2
		base = func(j int) int { return j }
	}

	w := e.weights
	h := len(w) - 1
	return grid.Parallel(count, e.workers, func(lo, hi int) error {
		for j := lo; j < hi; j++ {
			b := base(j)
			for i := 0; i < n; i++ {
				jlo := max(-h, -i)
				jhi := min(h, n-1-i)
				var sum, norm float64
				for k := jlo; k <= jhi; k++ {
					wk := w[abs(k)]
					sum += wk * float64(src[b+(i+k)*stride])
					norm += wk
				}
				dst[b+i*stride] = float32(sum / norm)
			}
		}
		return nil
	})
}

// Correlate returns the smoothed product f(x)·g(x-lag) along axis 1.
// Samples outside the line are zero. A negative lag pairs f(x) with
// g(x+|lag|).
func (e *Engine) Correlate(f, g *grid.Grid, lag int) (*grid.Grid, error) {
	if err := grid.SameShape(f, g); err != nil {
		return nil, err
	}
	p := LaggedProduct(f, g, lag)
	return e.Smooth(p)
}

// LocalAutocorrelation returns maxLag+1 grids; element l is the smoothed
// product g(x)·g(x-l) along axis 1.
func (e *Engine) LocalAutocorrelation(g *grid.Grid, maxLag int) ([]*grid.Grid, error) {
	if maxLag < 0 {
		return nil, fmt.Errorf("%w: maxLag must be non-negative, got %d",
			grid.ErrInvalidParameter, maxLag)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: nil grid", grid.ErrInvalidParameter)
	}
	out := make([]*grid.Grid, maxLag+1)
	for l := range out {
		r, err := e.Correlate(g, g, l)
		if err != nil {
			return nil, fmt.Errorf("lag %d: %w", l, err)
		}
		out[l] = r
	}
	return out, nil
}

// LaggedProduct returns the unsmoothed product f(x)·g(x-lag) along axis 1
// with zero padding. f and g must share a shape.
func LaggedProduct(f, g *grid.Grid, lag int) *grid.Grid {
	out := f.Clone()
	s := f.Shape()
	n1 := s.N1
	for j := 0; j < s.Lines(); j++ {
		fl, gl, ol := f.Line(j), g.Line(j), out.Line(j)
		for i := 0; i < n1; i++ {
			k := i - lag
			if k < 0 || k >= n1 {
				ol[i] = 0
				continue
			}
			ol[i] = fl[i] * gl[k]
		}
	}
	return out
}

// Smooth is a convenience wrapper creating a one-off engine.
func Smooth(g *grid.Grid, sigma float64) (*grid.Grid, error) {
	e, err := New(sigma)
	if err != nil {
		return nil, err
	}
	return e.Smooth(g)
}

// LocalAutocorrelation is a convenience wrapper creating a one-off engine.
func LocalAutocorrelation(g *grid.Grid, maxLag int, sigma float64) ([]*grid.Grid, error) {
	e, err := New(sigma)
	if err != nil {
		return nil, err
	}
	return e.LocalAutocorrelation(g, maxLag)
}

func abs(k int) int {
	if k < 0 {
		return -k
	}
	return k
}
