package visualizer

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/localburg/internal/grid"
)

// blueRed approximates the diverging palette of the PNG output.
var blueRed = []string{"#3b4cc0", "#6788ee", "#9abbff", "#c9d7f0", "#edd1c2", "#f7a889", "#e26952", "#b40426"}

// HTMLVisualizer writes an interactive heat map of each grid to
// <Dir>/<title>.html.
type HTMLVisualizer struct {
	Dir         string
	Percentiles Percentiles
}

// NewHTMLVisualizer returns a visualizer writing pages into dir.
func NewHTMLVisualizer(dir string) *HTMLVisualizer {
	return &HTMLVisualizer{Dir: dir, Percentiles: FullRange}
}

// Show renders g as an echarts heat map page.
func (v *HTMLVisualizer) Show(g *grid.Grid, clip float64, title string) error {
	if err := checkGrid(g); err != nil {
		return err
	}
	lo, hi, err := Range(g, clip, v.Percentiles)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := renderHeatMap(&buf, displaySlice(g), lo, hi, title); err != nil {
		return fmt.Errorf("failed to render heatmap chart: %w", err)
	}
	if err := os.MkdirAll(v.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	file := joinDir(v.Dir, title, ".html")
	if err := os.WriteFile(file, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	return nil
}

func renderHeatMap(buf *bytes.Buffer, g *grid.Grid, lo, hi float64, title string) error {
	s := g.Shape()
	xs := make([]int, s.N2)
	for i := range xs {
		xs[i] = i
	}
	// Category axes grow upwards; label rows so i1 = 0 sits at the top.
	ys := make([]int, s.N1)
	for i := range ys {
		ys[i] = s.N1 - 1 - i
	}

	data := make([]opts.HeatMapData, 0, g.Len())
	for i2 := 0; i2 < s.N2; i2++ {
		for i1 := 0; i1 < s.N1; i1++ {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i2, s.N1 - 1 - i1, g.At(i1, i2, 0)}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%s clip=[%g, %g]", s, lo, hi)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "i2", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "i1", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: blueRed},
		}),
	)
	hm.SetXAxis(xs).AddSeries("samples", data)
	return hm.Render(buf)
}
