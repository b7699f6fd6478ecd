// Package visualizer renders grids to image and HTML files.
package visualizer

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/localburg/internal/grid"
)

// Visualizer displays a grid. clip > 0 maps [-clip, clip] onto the colour
// scale; clip == 0 scales to the data's percentile range.
type Visualizer interface {
	Show(g *grid.Grid, clip float64, title string) error
}

// Percentiles bounds the automatic colour range.
type Percentiles struct {
	Min, Max float64 // in [0, 100]
}

// FullRange scales to the smallest and largest sample.
var FullRange = Percentiles{Min: 0, Max: 100}

// Range returns the colour range used for g.
func Range(g *grid.Grid, clip float64, perc Percentiles) (lo, hi float64, err error) {
	if clip < 0 || math.IsNaN(clip) {
		return 0, 0, fmt.Errorf("%w: clip must be non-negative, got %g", grid.ErrInvalidParameter, clip)
	}
	if clip > 0 {
		return -clip, clip, nil
	}
	if !(perc.Min >= 0 && perc.Min <= perc.Max && perc.Max <= 100) {
		return 0, 0, fmt.Errorf("%w: percentiles %g..%g", grid.ErrInvalidParameter, perc.Min, perc.Max)
	}

	x := make([]float64, 0, g.Len())
	for _, v := range displaySlice(g).Data() {
		if f := float64(v); !math.IsNaN(f) && !math.IsInf(f, 0) {
			x = append(x, f)
		}
	}
	if len(x) == 0 {
		return -1, 1, nil
	}
	slices.Sort(x)
	lo = stat.Quantile(perc.Min/100, stat.Empirical, x, nil)
	hi = stat.Quantile(perc.Max/100, stat.Empirical, x, nil)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	return lo, hi, nil
}

// displaySlice returns the i3 = 0 slice of g as a 2-D grid.
func displaySlice(g *grid.Grid) *grid.Grid {
	s := g.Shape()
	if s.N3 == 1 {
		return g
	}
	n := s.N1 * s.N2
	out, _ := grid.FromSlice(grid.Shape{N1: s.N1, N2: s.N2, N3: 1}, g.Data()[:n])
	return out
}

// fileName turns a plot title into a file name with the given extension.
func fileName(title, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(title))
	if name == "" {
		name = "grid"
	}
	return name + ext
}

// Multi shows every grid on each of its visualizers.
type Multi []Visualizer

// Show calls every visualizer and joins their errors.
func (m Multi) Show(g *grid.Grid, clip float64, title string) error {
	var errs []error
	for _, v := range m {
		if err := v.Show(g, clip, title); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard ignores every grid.
type Discard struct{}

// Show does nothing.
func (Discard) Show(*grid.Grid, float64, string) error { return nil }

func checkGrid(g *grid.Grid) error {
	if g == nil {
		return fmt.Errorf("%w: nil grid", grid.ErrInvalidParameter)
	}
	return nil
}

func joinDir(dir, title, ext string) string { return filepath.Join(dir, fileName(title, ext)) }
