// Command zeromask computes a mask of the near-zero samples of a seismic
// image and writes it next to the image.
//
// Without flags it reads "tpsz" from /data/seis/vg, writes the mask as
// "tpmz" and plots both.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/localburg/internal/config"
	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/imagestore"
	"github.com/banshee-data/localburg/internal/monitoring"
	"github.com/banshee-data/localburg/internal/synthetic"
	"github.com/banshee-data/localburg/internal/version"
	"github.com/banshee-data/localburg/internal/visualizer"
	"github.com/banshee-data/localburg/internal/zeromask"
)

// Flags holds the command line.
type Flags struct {
	ConfigPath string
	DataDir    string
	OutputDir  string
	Synthetic  bool
	HTML       bool
	Version    bool
}

func main() {
	f := parseFlags()
	if f.Version {
		fmt.Println(version.String("zeromask"))
		return
	}
	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	flagged, err := run(cfg, f)
	if err != nil {
		log.Fatalf("zeromask failed: %v", err)
	}
	n := cfg.Shape().Len()
	fmt.Printf("%d of %d samples near zero (%.1f%%)\n", flagged, n, 100*float64(flagged)/float64(n))
}

func parseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "", "Path to JSON config (defaults are compiled in)")
	flag.StringVar(&f.DataDir, "data", "", "Directory holding the images (overrides data_dir)")
	flag.StringVar(&f.OutputDir, "out", "", "Directory for plots (overrides output_dir)")
	flag.BoolVar(&f.Synthetic, "synthetic", false, "Mask a generated image instead of reading one")
	flag.BoolVar(&f.HTML, "html", false, "Also write interactive HTML plots")
	flag.BoolVar(&f.Version, "version", false, "Print version and exit")
	flag.Parse()
	return f
}

// loadConfig reads the config file, if any, and applies flag overrides.
// A synthetic run without -data keeps its images in the output directory.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := config.Empty()
	if f.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadConfig(f.ConfigPath); err != nil {
			return nil, err
		}
	}
	if f.OutputDir != "" {
		cfg.OutputDir = &f.OutputDir
	}
	switch {
	case f.DataDir != "":
		cfg.DataDir = &f.DataDir
	case f.Synthetic:
		out := cfg.GetOutputDir()
		cfg.DataDir = &out
	}
	return cfg, nil
}

// source returns the image to mask. Synthetic images get a dead zone at
// the top of every trace, like a flattened subset.
func source(cfg *config.Config, store *imagestore.FileStore, f Flags) (*grid.Grid, error) {
	if !f.Synthetic {
		return store.Load(cfg.GetMaskSource())
	}
	s, err := synthetic.Seismic(cfg.Shape(), synthetic.DefaultParams())
	if err != nil {
		return nil, err
	}
	synthetic.ZeroTaper(s, cfg.GetN1()/4)
	return s, store.Save(cfg.GetMaskSource(), s)
}

func run(cfg *config.Config, f Flags) (int, error) {
	defer monitoring.Timed("zeromask")()

	store, err := imagestore.NewFileStore(imagestore.OSBackend{}, cfg.GetDataDir(), cfg.Shape())
	if err != nil {
		return 0, err
	}
	s, err := source(cfg, store, f)
	if err != nil {
		return 0, err
	}

	params := cfg.MaskParams()
	m, err := zeromask.Compute(s, params)
	if err != nil {
		return 0, err
	}
	if err := store.Save(cfg.GetMaskOutput(), m); err != nil {
		return 0, err
	}
	flagged := zeromask.Count(m)
	monitoring.Logf("zeromask: %d near-zero samples in %s (rel_tol=%g abs_tol=%g sigma1=%g sigma2=%g)",
		flagged, s.Shape(), params.RelTol, params.AbsTol, params.Sigma1, params.Sigma2)

	vis := visualizer.Multi{visualizer.NewPNGVisualizer(cfg.GetOutputDir())}
	if f.HTML {
		vis = append(vis, visualizer.NewHTMLVisualizer(cfg.GetOutputDir()))
	}
	if err := vis.Show(s, 0, cfg.GetMaskSource()); err != nil {
		return 0, err
	}
	if err := vis.Show(m, 0, cfg.GetMaskOutput()); err != nil {
		return 0, err
	}
	return flagged, nil
}
