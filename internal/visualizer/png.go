package visualizer

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/localburg/internal/grid"
)

// paletteSize is the number of colours in the heat map palette.
const paletteSize = 255

// PNGVisualizer writes a heat map of each grid to <Dir>/<title>.png.
// Axis 2 runs across the image and axis 1 down it.
type PNGVisualizer struct {
	Dir         string
	Width       vg.Length
	Height      vg.Length
	Percentiles Percentiles
}

// NewPNGVisualizer returns a visualizer writing 8x8 inch images into dir.
func NewPNGVisualizer(dir string) *PNGVisualizer {
	return &PNGVisualizer{Dir: dir, Width: 8 * vg.Inch, Height: 8 * vg.Inch, Percentiles: FullRange}
}

// Show renders g and saves it. Only the first i3 slice of a volume is drawn.
func (v *PNGVisualizer) Show(g *grid.Grid, clip float64, title string) error {
	if err := checkGrid(g); err != nil {
		return err
	}
	lo, hi, err := Range(g, clip, v.Percentiles)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(v.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}

	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(0)
	cmap.SetMax(1)
	pal := cmap.Palette(paletteSize)
	colors := pal.Colors()

	img := gridXYZ{g: displaySlice(g)}
	hm := plotter.NewHeatMap(img, pal)
	hm.Min, hm.Max = lo, hi
	hm.Underflow = colors[0]
	hm.Overflow = colors[len(colors)-1]
	hm.Rasterized = true

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "i2"
	p.Y.Label.Text = "i1"
	p.Y.Tick.Marker = reversedTicks{n: img.g.Shape().N1}
	p.Add(hm)

	file := joinDir(v.Dir, title, ".png")
	if err := p.Save(v.Width, v.Height, file); err != nil {
		return fmt.Errorf("failed to save %s: %w", file, err)
	}
	return nil
}

// gridXYZ adapts a 2-D grid to plotter.GridXYZ with row 0 at the bottom,
// so the first axis-1 sample is drawn at the top.
type gridXYZ struct {
	g *grid.Grid
}

func (a gridXYZ) Dims() (c, r int) {
	s := a.g.Shape()
	return s.N2, s.N1
}

func (a gridXYZ) Z(c, r int) float64 {
	n1 := a.g.Shape().N1
	return float64(a.g.At(n1-1-r, c, 0))
}

func (a gridXYZ) X(c int) float64 { return float64(c) }
func (a gridXYZ) Y(r int) float64 { return float64(r) }

// reversedTicks labels heat map rows with their axis-1 index.
type reversedTicks struct {
	n int
}

func (t reversedTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = strconv.Itoa(t.n - 1 - int(math.Round(ticks[i].Value)))
		}
	}
	return ticks
}
