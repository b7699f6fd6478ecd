// Package zeromask flags samples of an image whose local amplitude is near
// zero relative to the amplitude of their surroundings.
//
// Both amplitudes are isotropic Gaussian averages of |g|, at scales Sigma1
// and Sigma2 on every axis, unlike the older ZeroMask(small, σ1, σ2, σ3)
// tool, which used one scale per axis against a global mean amplitude.
// That tool also marked the samples carrying signal; here the near-zero
// samples are marked.
//
// A sample whose local amplitude is exactly zero is always flagged, even
// when the threshold is zero, so dead zones wider than the reference
// kernel are masked in full.
package zeromask

import (
	"fmt"
	"math"

	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/localstats"
)

// Params controls the near-zero test.
type Params struct {
	// RelTol is the fraction of the reference amplitude below which a
	// sample counts as near zero.
	RelTol float64 `json:"rel_tol"`
	// AbsTol is a floor on the threshold, in sample units.
	AbsTol float64 `json:"abs_tol"`
	// Sigma1 is the smoothing scale of the local amplitude.
	Sigma1 float64 `json:"sigma1"`
	// Sigma2 is the smoothing scale of the reference amplitude.
	Sigma2 float64 `json:"sigma2"`
}

// DefaultParams returns the parameters used for the tpsz subset.
func DefaultParams() Params {
	return Params{RelTol: 0.1, AbsTol: 0, Sigma1: 1, Sigma2: 10}
}

// Validate checks that tolerances are non-negative and scales positive.
func (p Params) Validate() error {
	if !(p.RelTol >= 0) || math.IsInf(p.RelTol, 0) {
		return fmt.Errorf("%w: rel_tol must be non-negative, got %g", grid.ErrInvalidParameter, p.RelTol)
	}
	if !(p.AbsTol >= 0) || math.IsInf(p.AbsTol, 0) {
		return fmt.Errorf("%w: abs_tol must be non-negative, got %g", grid.ErrInvalidParameter, p.AbsTol)
	}
	if !(p.Sigma1 > 0) || math.IsInf(p.Sigma1, 0) {
		return fmt.Errorf("%w: sigma1 must be positive, got %g", grid.ErrInvalidParameter, p.Sigma1)
	}
	if !(p.Sigma2 > 0) || math.IsInf(p.Sigma2, 0) {
		return fmt.Errorf("%w: sigma2 must be positive, got %g", grid.ErrInvalidParameter, p.Sigma2)
	}
	return nil
}

// Compute returns a mask shaped like g holding 1 where the local amplitude
// Smooth_σ1(|g|) is below max(AbsTol, RelTol·Smooth_σ2(|g|)) or is zero,
// and 0 elsewhere.
func Compute(g *grid.Grid, p Params) (*grid.Grid, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil grid", grid.ErrInvalidParameter)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	a := grid.Abs(g)
	local, err := localstats.Smooth(a, p.Sigma1)
	if err != nil {
		return nil, fmt.Errorf("local amplitude: %w", err)
	}
	ref, err := localstats.Smooth(a, p.Sigma2)
	if err != nil {
		return nil, fmt.Errorf("reference amplitude: %w", err)
	}

	mask := local
	md, rd := mask.Data(), ref.Data()
	for i, m := range md {
		threshold := math.Max(p.AbsTol, p.RelTol*float64(rd[i]))
		if m == 0 || float64(m) < threshold {
			md[i] = 1
		} else {
			md[i] = 0
		}
	}
	return mask, nil
}

// Count returns the number of flagged samples.
func Count(mask *grid.Grid) int {
	n := 0
	for _, v := range mask.Data() {
		if v != 0 {
			n++
		}
	}
	return n
}

// Apply returns a copy of g with the flagged samples set to zero.
func Apply(mask, g *grid.Grid) (*grid.Grid, error) {
	if err := grid.SameShape(mask, g); err != nil {
		return nil, err
	}
	out := g.Clone()
	od := out.Data()
	for i, m := range mask.Data() {
		if m != 0 {
			od[i] = 0
		}
	}
	return out, nil
}

// Invert returns a mask flagging exactly the samples mask does not.
func Invert(mask *grid.Grid) *grid.Grid {
	out := mask.Clone()
	for i, m := range out.Data() {
		if m != 0 {
			out.Data()[i] = 0
		} else {
			out.Data()[i] = 1
		}
	}
	return out
}
