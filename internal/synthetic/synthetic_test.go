package synthetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localburg/internal/grid"
)

func TestSeismic_Deterministic(t *testing.T) {
	t.Parallel()

	s := grid.Shape{N1: 50, N2: 6, N3: 2}
	a, err := Seismic(s, DefaultParams())
	require.NoError(t, err)
	b, err := Seismic(s, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())
	assert.Equal(t, s, a.Shape())

	p := DefaultParams()
	p.Seed = 2
	c, err := Seismic(s, p)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data(), c.Data())
}

func TestSeismic_NoiseFreeIsBandLimited(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.Noise = 0
	p.Reflectors = 1
	g, err := Seismic(grid.Shape{N1: 60, N2: 1, N3: 1}, p)
	require.NoError(t, err)

	nonzero := 0
	for _, v := range g.Data() {
		if v != 0 {
			nonzero++
		}
	}
	// One reflector spreads over at most one wavelet length.
	assert.LessOrEqual(t, nonzero, len(ricker(p.PeakFreq)))
	assert.Positive(t, nonzero)
}

func TestSeismic_Invalid(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.PeakFreq = 0.5
	_, err := Seismic(grid.Shape{N1: 4, N2: 1, N3: 1}, p)
	assert.ErrorIs(t, err, grid.ErrInvalidParameter)
	_, err = Seismic(grid.Shape{N1: 0, N2: 1, N3: 1}, DefaultParams())
	assert.ErrorIs(t, err, grid.ErrInvalidParameter)
}

func TestRicker_PeakAtCentre(t *testing.T) {
	t.Parallel()

	w := ricker(0.1)
	h := len(w) / 2
	assert.Equal(t, 1.0, w[h])
	for j := range w {
		assert.LessOrEqual(t, w[j], w[h])
		assert.InDelta(t, w[j], w[len(w)-1-j], 1e-12)
	}
}

func TestZeroTaper(t *testing.T) {
	t.Parallel()

	g, err := grid.New2(4, 2)
	require.NoError(t, err)
	g.Fill(3)
	ZeroTaper(g, 2)
	assert.Equal(t, []float32{0, 0, 3, 3, 0, 0, 3, 3}, g.Data())

	ZeroTaper(g, 10)
	assert.Equal(t, make([]float32, 8), g.Data())
}
