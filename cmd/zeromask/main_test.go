package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localburg/internal/imagestore"
	"github.com/banshee-data/localburg/internal/monitoring"
	"github.com/banshee-data/localburg/internal/zeromask"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestRun_Synthetic(t *testing.T) {
	out := t.TempDir()
	f := Flags{OutputDir: out, Synthetic: true, HTML: true}
	cfg, err := loadConfig(f)
	require.NoError(t, err)
	n1, n2, n3 := 40, 6, 3
	cfg.N1, cfg.N2, cfg.N3 = &n1, &n2, &n3

	flagged, err := run(cfg, f)
	require.NoError(t, err)
	assert.Positive(t, flagged)
	assert.Less(t, flagged, cfg.Shape().Len())

	store, err := imagestore.NewFileStore(nil, out, cfg.Shape())
	require.NoError(t, err)
	m, err := store.Load("tpmz")
	require.NoError(t, err)
	assert.Equal(t, flagged, zeromask.Count(m))

	// The dead zone at the top of each trace is masked, its middle is not.
	assert.Equal(t, float32(1), m.At(0, 2, 1))
	assert.Equal(t, float32(0), m.At(30, 2, 1))

	for _, name := range []string{"tpsz.png", "tpmz.png", "tpsz.html", "tpmz.html"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
}

func TestRun_SyntheticDeadZoneWiderThanReference(t *testing.T) {
	out := t.TempDir()
	f := Flags{OutputDir: out, Synthetic: true}
	cfg, err := loadConfig(f)
	require.NoError(t, err)
	n2 := 4
	cfg.N2 = &n2

	_, err = run(cfg, f)
	require.NoError(t, err)

	store, err := imagestore.NewFileStore(nil, out, cfg.Shape())
	require.NoError(t, err)
	s, err := store.Load("tpsz")
	require.NoError(t, err)
	m, err := store.Load("tpmz")
	require.NoError(t, err)

	// The taper zeroes 78 samples per trace; all but the last few, whose
	// local window reaches live samples, must be masked.
	dead := cfg.GetN1() / 4
	for i2 := 0; i2 < n2; i2++ {
		for i1 := 0; i1 < dead-4; i1++ {
			require.Zero(t, s.At(i1, i2, 0))
			require.Equalf(t, float32(1), m.At(i1, i2, 0), "i1=%d i2=%d", i1, i2)
		}
	}
}

func TestRun_MissingSource(t *testing.T) {
	cfg, err := loadConfig(Flags{DataDir: t.TempDir(), OutputDir: t.TempDir()})
	require.NoError(t, err)
	n1, n2 := 8, 4
	cfg.N1, cfg.N2 = &n1, &n2

	_, err = run(cfg, Flags{})
	assert.ErrorIs(t, err, imagestore.ErrStorage)
}

func TestLoadConfig_SyntheticUsesOutputDir(t *testing.T) {
	cfg, err := loadConfig(Flags{OutputDir: "plots-x", Synthetic: true})
	require.NoError(t, err)
	assert.Equal(t, "plots-x", cfg.GetDataDir())

	cfg, err = loadConfig(Flags{OutputDir: "plots-x", DataDir: "d", Synthetic: true})
	require.NoError(t, err)
	assert.Equal(t, "d", cfg.GetDataDir())
}
