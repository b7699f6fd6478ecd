package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/zeromask"
)

// DefaultConfigPath is the checked-in copy of the compiled-in defaults.
const DefaultConfigPath = "config/localburg.defaults.json"

// Lattice geometries accepted by the lattice field.
const (
	LatticeAxis1        = "axis1"
	LatticeQuarterPlane = "quarter-plane"
)

// Config holds the parameters of the burg and zeromask drivers.
// Every field is optional; the Get* methods fall back to compiled-in
// defaults, so partial JSON files are safe.
type Config struct {
	// Image dimensions
	N1 *int `json:"n1,omitempty"`
	N2 *int `json:"n2,omitempty"`
	N3 *int `json:"n3,omitempty"`

	// Local Burg filter
	Order         *int     `json:"order,omitempty"`
	Sigma         *float64 `json:"sigma,omitempty"`
	MaxReflection *float64 `json:"max_reflection,omitempty"`
	Workers       *int     `json:"workers,omitempty"` // 0 selects GOMAXPROCS
	Lattice       *string  `json:"lattice,omitempty"`

	// Storage
	DataDir   *string `json:"data_dir,omitempty"`
	OutputDir *string `json:"output_dir,omitempty"`
	DBPath    *string `json:"db_path,omitempty"` // empty disables snapshots
	ImageName *string `json:"image_name,omitempty"`

	// Zero mask
	MaskSource *string  `json:"mask_source,omitempty"`
	MaskOutput *string  `json:"mask_output,omitempty"`
	RelTol     *float64 `json:"rel_tol,omitempty"`
	AbsTol     *float64 `json:"abs_tol,omitempty"`
	MaskSigma1 *float64 `json:"mask_sigma1,omitempty"`
	MaskSigma2 *float64 `json:"mask_sigma2,omitempty"`

	// Display clips; 0 means automatic
	ClipInput    *float64 `json:"clip_input,omitempty"`
	ClipResidual *float64 `json:"clip_residual,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with all fields nil.
func Empty() *Config {
	return &Config{}
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	return &Config{
		N1:            ptrInt(315),
		N2:            ptrInt(315),
		N3:            ptrInt(1),
		Order:         ptrInt(1),
		Sigma:         ptrFloat64(8),
		MaxReflection: ptrFloat64(0.999),
		Workers:       ptrInt(0),
		Lattice:       ptrString(LatticeAxis1),
		DataDir:       ptrString("/data/seis/vg"),
		OutputDir:     ptrString("plots"),
		DBPath:        ptrString(""),
		ImageName:     ptrString("junks"),
		MaskSource:    ptrString("tpsz"),
		MaskOutput:    ptrString("tpmz"),
		RelTol:        ptrFloat64(0.1),
		AbsTol:        ptrFloat64(0),
		MaskSigma1:    ptrFloat64(1),
		MaskSigma2:    ptrFloat64(10),
		ClipInput:     ptrFloat64(10),
		ClipResidual:  ptrFloat64(2),
	}
}

// LoadConfig loads a Config from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set, then the combinations that
// depend on defaults.
func (c *Config) Validate() error {
	for name, v := range map[string]*int{"n1": c.N1, "n2": c.N2, "n3": c.N3, "order": c.Order} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", grid.ErrInvalidParameter, name, *v)
		}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", grid.ErrInvalidParameter, *c.Workers)
	}
	if c.Sigma != nil && !(*c.Sigma > 0) {
		return fmt.Errorf("%w: sigma must be positive, got %g", grid.ErrInvalidParameter, *c.Sigma)
	}
	if c.MaxReflection != nil && !(*c.MaxReflection > 0 && *c.MaxReflection <= 1) {
		return fmt.Errorf("%w: max_reflection must be in (0, 1], got %g", grid.ErrInvalidParameter, *c.MaxReflection)
	}
	if c.Lattice != nil && *c.Lattice != LatticeAxis1 && *c.Lattice != LatticeQuarterPlane {
		return fmt.Errorf("%w: lattice must be %q or %q, got %q",
			grid.ErrInvalidParameter, LatticeAxis1, LatticeQuarterPlane, *c.Lattice)
	}
	for name, v := range map[string]*float64{"clip_input": c.ClipInput, "clip_residual": c.ClipResidual} {
		if v != nil && !(*v >= 0) {
			return fmt.Errorf("%w: %s must be non-negative, got %g", grid.ErrInvalidParameter, name, *v)
		}
	}
	if err := c.MaskParams().Validate(); err != nil {
		return err
	}
	if n1 := c.GetN1(); c.GetOrder() >= n1 {
		return fmt.Errorf("%w: order %d needs n1 > %d, got %d", grid.ErrInvalidParameter, c.GetOrder(), c.GetOrder(), n1)
	}
	return nil
}

// GetN1 returns the n1 value or the default.
func (c *Config) GetN1() int {
	if c.N1 == nil {
		return 315 // default
	}
	return *c.N1
}

// GetN2 returns the n2 value or the default.
func (c *Config) GetN2() int {
	if c.N2 == nil {
		return 315 // default
	}
	return *c.N2
}

// GetN3 returns the n3 value or the default.
func (c *Config) GetN3() int {
	if c.N3 == nil {
		return 1 // default
	}
	return *c.N3
}

// Shape returns the configured image dimensions.
func (c *Config) Shape() grid.Shape {
	return grid.Shape{N1: c.GetN1(), N2: c.GetN2(), N3: c.GetN3()}
}

// GetOrder returns the filter order or the default.
func (c *Config) GetOrder() int {
	if c.Order == nil {
		return 1 // default
	}
	return *c.Order
}

// GetSigma returns the smoothing scale or the default.
func (c *Config) GetSigma() float64 {
	if c.Sigma == nil {
		return 8 // default
	}
	return *c.Sigma
}

// GetMaxReflection returns the reflection coefficient clip or the default.
func (c *Config) GetMaxReflection() float64 {
	if c.MaxReflection == nil {
		return 0.999 // default
	}
	return *c.MaxReflection
}

// GetWorkers returns the worker limit; 0 means GOMAXPROCS.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetLattice returns the lattice geometry or the default.
func (c *Config) GetLattice() string {
	if c.Lattice == nil {
		return LatticeAxis1 // default
	}
	return *c.Lattice
}

// GetDataDir returns the input directory or the default.
func (c *Config) GetDataDir() string {
	if c.DataDir == nil {
		return "/data/seis/vg" // default
	}
	return *c.DataDir
}

// GetOutputDir returns the plot directory or the default.
func (c *Config) GetOutputDir() string {
	if c.OutputDir == nil {
		return "plots" // default
	}
	return *c.OutputDir
}

// GetDBPath returns the snapshot database path; empty disables snapshots.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetImageName returns the burg input dataset or the default.
func (c *Config) GetImageName() string {
	if c.ImageName == nil {
		return "junks" // default
	}
	return *c.ImageName
}

// GetMaskSource returns the zeromask input dataset or the default.
func (c *Config) GetMaskSource() string {
	if c.MaskSource == nil {
		return "tpsz" // default
	}
	return *c.MaskSource
}

// GetMaskOutput returns the zeromask output dataset or the default.
func (c *Config) GetMaskOutput() string {
	if c.MaskOutput == nil {
		return "tpmz" // default
	}
	return *c.MaskOutput
}

// MaskParams returns the zero mask parameters, filling unset fields from
// zeromask.DefaultParams.
func (c *Config) MaskParams() zeromask.Params {
	p := zeromask.DefaultParams()
	if c.RelTol != nil {
		p.RelTol = *c.RelTol
	}
	if c.AbsTol != nil {
		p.AbsTol = *c.AbsTol
	}
	if c.MaskSigma1 != nil {
		p.Sigma1 = *c.MaskSigma1
	}
	if c.MaskSigma2 != nil {
		p.Sigma2 = *c.MaskSigma2
	}
	return p
}

// GetClipInput returns the display clip for input and reconstructed images.
func (c *Config) GetClipInput() float64 {
	if c.ClipInput == nil {
		return 10 // default
	}
	return *c.ClipInput
}

// GetClipResidual returns the display clip for residual images.
func (c *Config) GetClipResidual() float64 {
	if c.ClipResidual == nil {
		return 2 // default
	}
	return *c.ClipResidual
}
