// Command burg estimates a local Burg prediction error filter for an image,
// whitens the image with it and reconstructs the image from the residual.
//
// Without flags it reads the 315x315 image "junks" from /data/seis/vg and
// writes PNG plots of the input, the lattice residual, the direct-form
// residual, the reconstruction and the reconstruction error. Setting
// "lattice": "quarter-plane" in the config uses the 2-D quarter-plane
// lattice instead of the axis-1 one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/localburg/internal/burg"
	"github.com/banshee-data/localburg/internal/config"
	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/imagestore"
	"github.com/banshee-data/localburg/internal/monitoring"
	"github.com/banshee-data/localburg/internal/snapshot"
	"github.com/banshee-data/localburg/internal/synthetic"
	"github.com/banshee-data/localburg/internal/version"
	"github.com/banshee-data/localburg/internal/visualizer"
)

// Flags holds the command line.
type Flags struct {
	ConfigPath string
	DataDir    string
	OutputDir  string
	DBPath     string
	Synthetic  bool
	HTML       bool
	Version    bool
}

// Report summarises one run.
type Report struct {
	MaxDiff       float64
	InputRMS      float64
	ResidualRMS   float64
	Clipped       int
	NonFinite     int
	SnapshotID    string
	RestoredMatch bool
}

func main() {
	f := parseFlags()
	if f.Version {
		fmt.Println(version.String("burg"))
		return
	}
	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	rep, err := run(context.Background(), cfg, f)
	if err != nil {
		log.Fatalf("burg failed: %v", err)
	}
	fmt.Printf("max diff = %g\n", rep.MaxDiff)
	fmt.Printf("rms input = %g residual = %g\n", rep.InputRMS, rep.ResidualRMS)
}

func parseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "", "Path to JSON config (defaults are compiled in)")
	flag.StringVar(&f.DataDir, "data", "", "Directory holding the input image (overrides data_dir)")
	flag.StringVar(&f.OutputDir, "out", "", "Directory for plots (overrides output_dir)")
	flag.StringVar(&f.DBPath, "db", "", "Snapshot database for the estimated coefficients (overrides db_path)")
	flag.BoolVar(&f.Synthetic, "synthetic", false, "Filter a generated image instead of reading one")
	flag.BoolVar(&f.HTML, "html", false, "Also write interactive HTML plots")
	flag.BoolVar(&f.Version, "version", false, "Print version and exit")
	flag.Parse()
	return f
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := config.Empty()
	if f.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadConfig(f.ConfigPath); err != nil {
			return nil, err
		}
	}
	if f.DataDir != "" {
		cfg.DataDir = &f.DataDir
	}
	if f.OutputDir != "" {
		cfg.OutputDir = &f.OutputDir
	}
	if f.DBPath != "" {
		cfg.DBPath = &f.DBPath
	}
	return cfg, nil
}

func newVisualizer(cfg *config.Config, html bool) visualizer.Visualizer {
	v := visualizer.Multi{visualizer.NewPNGVisualizer(cfg.GetOutputDir())}
	if html {
		v = append(v, visualizer.NewHTMLVisualizer(cfg.GetOutputDir()))
	}
	return v
}

func loadImage(cfg *config.Config, f Flags) (*grid.Grid, error) {
	if f.Synthetic {
		return synthetic.Seismic(cfg.Shape(), synthetic.DefaultParams())
	}
	store, err := imagestore.NewFileStore(imagestore.OSBackend{}, cfg.GetDataDir(), cfg.Shape())
	if err != nil {
		return nil, err
	}
	return store.Load(cfg.GetImageName())
}

func run(ctx context.Context, cfg *config.Config, f Flags) (*Report, error) {
	defer monitoring.Timed("burg")()

	x, err := loadImage(cfg, f)
	if err != nil {
		return nil, err
	}
	vis := newVisualizer(cfg, f.HTML)
	clipX, clipR := cfg.GetClipInput(), cfg.GetClipResidual()
	if err := vis.Show(x, clipX, "x"); err != nil {
		return nil, err
	}

	filter, err := burg.New(cfg.GetSigma(),
		burg.WithWorkers(cfg.GetWorkers()),
		burg.WithMaxReflection(cfg.GetMaxReflection()))
	if err != nil {
		return nil, err
	}

	rep := &Report{InputRMS: rms(x)}
	var (
		p *passes
		c *burg.CoefficientField
	)
	switch cfg.GetLattice() {
	case config.LatticeQuarterPlane:
		p, err = quarterPlane(filter, x, cfg.GetOrder(), rep)
	default:
		p, c, err = axis1(filter, x, cfg.GetOrder(), rep)
	}
	if err != nil {
		return nil, err
	}
	y, z, w := p.residual, p.forward, p.inverse
	for _, s := range []struct {
		g     *grid.Grid
		clip  float64
		title string
	}{{y, clipR, "y"}, {z, clipR, "z"}, {w, clipX, "w"}} {
		if err := vis.Show(s.g, s.clip, s.title); err != nil {
			return nil, err
		}
	}

	rep.ResidualRMS = rms(z)
	if rep.MaxDiff, err = grid.MaxAbsDiff(w, x); err != nil {
		return nil, err
	}
	monitoring.Logf("max diff = %g", rep.MaxDiff)

	d, err := grid.Sub(w, x)
	if err != nil {
		return nil, err
	}
	if err := vis.Show(d, 0, "w-x"); err != nil {
		return nil, err
	}

	if path := cfg.GetDBPath(); path != "" {
		if c == nil {
			monitoring.Logf("snapshot store holds axis-1 fields only, not saving %s coefficients", cfg.GetLattice())
			return rep, nil
		}
		if err := persist(ctx, path, cfg, filter, c, z, w, rep); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// passes holds the lattice residual, the re-applied forward residual and
// the reconstruction from it.
type passes struct {
	residual, forward, inverse *grid.Grid
}

func axis1(filter *burg.Filter, x *grid.Grid, order int, rep *Report) (*passes, *burg.CoefficientField, error) {
	done := monitoring.Timed("estimate")
	q, err := filter.ApplyQ1(x, order)
	done()
	if err != nil {
		return nil, nil, fmt.Errorf("estimating coefficients: %w", err)
	}
	c := q.Coefficients
	rep.Clipped, rep.NonFinite = c.Clipped, c.NonFinite

	z, err := filter.ApplyForward(c, x)
	if err != nil {
		return nil, nil, err
	}
	w, err := filter.ApplyInverse(c, z)
	if err != nil {
		return nil, nil, err
	}
	return &passes{residual: q.Residual, forward: z, inverse: w}, c, nil
}

func quarterPlane(filter *burg.Filter, x *grid.Grid, order int, rep *Report) (*passes, error) {
	done := monitoring.Timed("estimate quarter-plane")
	q, err := filter.ApplyQuarterPlane(x, order)
	done()
	if err != nil {
		return nil, fmt.Errorf("estimating quarter-plane coefficients: %w", err)
	}
	c := q.Coefficients
	rep.Clipped, rep.NonFinite = c.Clipped, c.NonFinite

	z, err := filter.ApplyQuarterPlaneForward(c, x)
	if err != nil {
		return nil, err
	}
	w, err := filter.ApplyQuarterPlaneInverse(c, z)
	if err != nil {
		return nil, err
	}
	return &passes{residual: q.Residual, forward: z, inverse: w}, nil
}

// persist stores the coefficients and checks that the stored copy
// reconstructs the same image.
func persist(ctx context.Context, path string, cfg *config.Config, filter *burg.Filter,
	c *burg.CoefficientField, z, w *grid.Grid, rep *Report) error {
	store, err := snapshot.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer store.Close()

	if rep.SnapshotID, err = store.Save(ctx, cfg.GetImageName(), c, cfg.GetSigma()); err != nil {
		return err
	}
	latest, err := store.Latest(ctx, cfg.GetImageName())
	if err != nil {
		return err
	}
	restored, err := filter.ApplyInverse(latest.Field, z)
	if err != nil {
		return err
	}
	diff, err := grid.MaxAbsDiff(restored, w)
	if err != nil {
		return err
	}
	rep.RestoredMatch = diff == 0
	monitoring.Logf("stored coefficients as snapshot %s (restored diff %g)", rep.SnapshotID, diff)
	return nil
}

// rms returns the root mean square of the finite samples of g.
func rms(g *grid.Grid) float64 {
	x := g.Float64s()
	floats.Mul(x, x)
	if !floats.HasNaN(x) {
		return math.Sqrt(stat.Mean(x, nil))
	}
	var finite []float64
	for _, v := range x {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	return math.Sqrt(stat.Mean(finite, nil))
}
