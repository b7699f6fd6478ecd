package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/zeromask"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	c := Empty()
	require.NoError(t, c.Validate())
	assert.Equal(t, grid.Shape{N1: 315, N2: 315, N3: 1}, c.Shape())
	assert.Equal(t, 1, c.GetOrder())
	assert.Equal(t, 8.0, c.GetSigma())
	assert.Equal(t, 0.999, c.GetMaxReflection())
	assert.Equal(t, 0, c.GetWorkers())
	assert.Equal(t, LatticeAxis1, c.GetLattice())
	assert.Equal(t, "junks", c.GetImageName())
	assert.Equal(t, "tpsz", c.GetMaskSource())
	assert.Equal(t, "tpmz", c.GetMaskOutput())
	assert.Empty(t, c.GetDBPath())
	assert.Equal(t, 10.0, c.GetClipInput())
	assert.Equal(t, 2.0, c.GetClipResidual())
	assert.Equal(t, zeromask.DefaultParams(), c.MaskParams())
}

func TestDefaultMatchesGetters(t *testing.T) {
	t.Parallel()

	d, e := Default(), Empty()
	require.NoError(t, d.Validate())
	assert.Equal(t, e.Shape(), d.Shape())
	assert.Equal(t, e.GetSigma(), d.GetSigma())
	assert.Equal(t, e.GetLattice(), d.GetLattice())
	assert.Equal(t, e.GetOutputDir(), d.GetOutputDir())
	assert.Equal(t, e.GetDataDir(), d.GetDataDir())
	assert.Equal(t, e.MaskParams(), d.MaskParams())
	assert.Equal(t, e.GetClipInput(), d.GetClipInput())
}

func TestDefaultsFileMatchesDefault(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults file mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Partial(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "burg.json", `{
  "n1": 64,
  "n2": 32,
  "order": 4,
  "sigma": 2.5,
  "lattice": "quarter-plane",
  "abs_tol": 0.01
}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, grid.Shape{N1: 64, N2: 32, N3: 1}, cfg.Shape())
	assert.Equal(t, 4, cfg.GetOrder())
	assert.Equal(t, 2.5, cfg.GetSigma())
	assert.Equal(t, LatticeQuarterPlane, cfg.GetLattice())
	assert.Equal(t, zeromask.Params{RelTol: 0.1, AbsTol: 0.01, Sigma1: 1, Sigma2: 10}, cfg.MaskParams())
	assert.Equal(t, "plots", cfg.GetOutputDir())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "c.yaml", `{}`, ".json extension"},
		{"bad json", "c.json", `{"n1": `, "failed to parse"},
		{"negative n2", "c.json", `{"n2": -1}`, "n2 must be positive"},
		{"zero order", "c.json", `{"order": 0}`, "order must be positive"},
		{"order too large", "c.json", `{"n1": 4, "order": 4}`, "needs n1 > 4"},
		{"sigma", "c.json", `{"sigma": 0}`, "sigma must be positive"},
		{"max reflection", "c.json", `{"max_reflection": 1.5}`, "max_reflection"},
		{"workers", "c.json", `{"workers": -2}`, "workers"},
		{"lattice", "c.json", `{"lattice": "diagonal"}`, "lattice must be"},
		{"clip", "c.json", `{"clip_residual": -1}`, "clip_residual"},
		{"mask sigma", "c.json", `{"mask_sigma2": 0}`, "sigma2"},
		{"rel tol", "c.json", `{"rel_tol": -0.5}`, "rel_tol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingAndTooLarge(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")

	big := `{"image_name": "` + strings.Repeat("x", 1<<20) + `"}`
	_, err = LoadConfig(writeConfig(t, "big.json", big))
	assert.ErrorContains(t, err, "too large")
}

func TestValidate_WrapsInvalidParameter(t *testing.T) {
	t.Parallel()
	c := Empty()
	c.Sigma = ptrFloat64(-1)
	assert.ErrorIs(t, c.Validate(), grid.ErrInvalidParameter)
}
