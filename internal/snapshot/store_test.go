package snapshot

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localburg/internal/burg"
	"github.com/banshee-data/localburg/internal/grid"
)

func estimate(t *testing.T, seed int64, order int) *burg.CoefficientField {
	t.Helper()
	g, err := grid.New2(12, 5)
	require.NoError(t, err)
	r := rand.New(rand.NewSource(seed))
	for i := range g.Data() {
		g.Data()[i] = float32(r.NormFloat64())
	}
	f, err := burg.New(2)
	require.NoError(t, err)
	c, err := f.EstimateCoefficients(g, order)
	require.NoError(t, err)
	return c
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	c := estimate(t, 1, 2)
	id, err := s.Save(ctx, "junks", c, 2)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "junks", got.Name)
	assert.Equal(t, c.Shape, got.Shape)
	assert.Equal(t, 2, got.Order)
	assert.Equal(t, 2.0, got.Sigma)
	require.NotNil(t, got.Field)
	assert.Equal(t, c, got.Field)
}

func TestLatestAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	base := time.Unix(1_700_000_000, 0)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := s.Save(ctx, "junks", estimate(t, 1, 1), 8)
	require.NoError(t, err)
	second, err := s.Save(ctx, "junks", estimate(t, 2, 1), 4)
	require.NoError(t, err)
	_, err = s.Save(ctx, "other", estimate(t, 3, 1), 8)
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "junks")
	require.NoError(t, err)
	assert.Equal(t, second, latest.ID)
	assert.Equal(t, 4.0, latest.Sigma)

	list, err := s.List(ctx, "junks")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
	assert.Nil(t, list[0].Field)
	assert.Equal(t, base.Add(time.Second).UnixNano(), list[1].CreatedAt.UnixNano())

	none, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Load(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Latest(ctx, "junks")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "no-such-id"), ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	id, err := s.Save(ctx, "junks", estimate(t, 4, 1), 8)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSave_RejectsUnstableField(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	c := estimate(t, 5, 1)
	c.Reflection[0] = 1.5
	_, err := s.Save(context.Background(), "junks", c, 8)
	assert.ErrorIs(t, err, burg.ErrNumericalInstability)
}

func TestOpen_ReappliesMigrations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Save(ctx, "junks", estimate(t, 6, 1), 8)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestOpen_InMemory(t *testing.T) {
	t.Parallel()
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Save(context.Background(), "mem", estimate(t, 7, 1), 1)
	require.NoError(t, err)
	_, err = s.Load(context.Background(), id)
	assert.NoError(t, err)
}

func TestBlob_RejectsEmptyAndCorrupt(t *testing.T) {
	t.Parallel()
	_, err := deserializeField(nil)
	assert.Error(t, err)
	_, err = deserializeField([]byte("not gzip"))
	assert.Error(t, err)
}
