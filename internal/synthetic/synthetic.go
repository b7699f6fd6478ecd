// Package synthetic generates test images resembling migrated seismic
// sections: dipping reflectors convolved with a Ricker wavelet plus noise.
package synthetic

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/banshee-data/localburg/internal/grid"
)

// Params controls the generated image.
type Params struct {
	Seed       int64
	PeakFreq   float64 // Ricker peak frequency in cycles per sample
	Dip        float64 // reflector slope in axis-1 samples per axis-2 sample
	Reflectors int     // number of reflectors per trace
	Noise      float64 // standard deviation of additive white noise
}

// DefaultParams returns parameters giving a busy but smooth section.
func DefaultParams() Params {
	return Params{Seed: 1, PeakFreq: 0.08, Dip: 0.3, Reflectors: 40, Noise: 0.1}
}

// Seismic returns an image of the given shape. Reflector depths and
// amplitudes are drawn once and shared by every trace; only their axis-1
// position shifts with the dip along axes 2 and 3.
func Seismic(s grid.Shape, p Params) (*grid.Grid, error) {
	g, err := grid.NewShape(s)
	if err != nil {
		return nil, err
	}
	if !(p.PeakFreq > 0 && p.PeakFreq < 0.5) {
		return nil, fmt.Errorf("%w: peak frequency must be in (0, 0.5), got %g",
			grid.ErrInvalidParameter, p.PeakFreq)
	}
	r := rand.New(rand.NewSource(p.Seed))
	depth := make([]float64, p.Reflectors)
	amp := make([]float64, p.Reflectors)
	for i := range depth {
		depth[i] = r.Float64() * float64(s.N1)
		amp[i] = r.NormFloat64()
	}

	w := ricker(p.PeakFreq)
	h := len(w) / 2
	for i3 := 0; i3 < s.N3; i3++ {
		for i2 := 0; i2 < s.N2; i2++ {
			line := g.Line(i2 + s.N2*i3)
			shift := p.Dip * float64(i2+i3)
			for k, d := range depth {
				c := int(math.Round(d + shift))
				for j, wj := range w {
					if i1 := c + j - h; i1 >= 0 && i1 < s.N1 {
						line[i1] += float32(amp[k] * wj)
					}
				}
			}
			for i1 := range line {
				line[i1] += float32(p.Noise * r.NormFloat64())
			}
		}
	}
	return g, nil
}

// ricker samples a Ricker wavelet with peak frequency f over ±1.5/f.
func ricker(f float64) []float64 {
	h := int(math.Ceil(1.5 / f))
	w := make([]float64, 2*h+1)
	for j := range w {
		a := math.Pi * f * float64(j-h)
		a *= a
		w[j] = (1 - 2*a) * math.Exp(-a)
	}
	return w
}

// ZeroTaper zeroes the first n samples of every axis-1 line of g in place,
// the way flattening or muting leaves dead zones in a section.
func ZeroTaper(g *grid.Grid, n int) {
	n = min(n, g.Shape().N1)
	for j := 0; j < g.Shape().Lines(); j++ {
		clear(g.Line(j)[:n])
	}
}
