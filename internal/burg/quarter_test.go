package burg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localburg/internal/grid"
	"github.com/banshee-data/localburg/internal/localstats"
)

func energy(g *grid.Grid) float64 {
	var e float64
	for _, v := range g.Data() {
		e += float64(v) * float64(v)
	}
	return e
}

func requirePairsBounded(t *testing.T, q *QuarterPlaneField, cmax float64) {
	t.Helper()
	for i := range q.C1 {
		a, b := float64(q.C1[i]), float64(q.C2[i])
		require.Falsef(t, math.IsNaN(a) || math.IsNaN(b), "pair %d is NaN", i)
		require.LessOrEqualf(t, math.Abs(a)+math.Abs(b), cmax+1e-6, "pair %d = (%g, %g)", i, a, b)
	}
}

func requireQuarterRoundtrip(t *testing.T, f *Filter, q *QuarterPlaneField, x *grid.Grid, tol float64) {
	t.Helper()
	z, err := f.ApplyQuarterPlaneForward(q, x)
	require.NoError(t, err)
	w, err := f.ApplyQuarterPlaneInverse(q, z)
	require.NoError(t, err)
	d, err := grid.MaxAbsDiff(w, x)
	require.NoError(t, err)
	assert.LessOrEqualf(t, d, tol*maxAbs(x), "max diff %g", d)
}

func TestQuarterPlane_ForwardReproducesResidual(t *testing.T) {
	t.Parallel()

	x := randomGrid(t, 30, 20, 14, 1)
	f, err := New(2)
	require.NoError(t, err)
	res, err := f.ApplyQuarterPlane(x, 3)
	require.NoError(t, err)
	requirePairsBounded(t, res.Coefficients, DefaultMaxReflection)

	z, err := f.ApplyQuarterPlaneForward(res.Coefficients, x)
	require.NoError(t, err)
	assert.Equal(t, res.Residual.Data(), z.Data())
}

func TestQuarterPlane_RoundtripOrderOne(t *testing.T) {
	t.Parallel()

	for _, x := range []*grid.Grid{
		randomGrid(t, 31, 24, 16, 1),
		randomGrid(t, 32, 12, 8, 3),
	} {
		f, err := New(3, WithWorkers(2))
		require.NoError(t, err)
		res, err := f.ApplyQuarterPlane(x, 1)
		require.NoError(t, err)
		requireQuarterRoundtrip(t, f, res.Coefficients, x, 1e-4)
	}
}

func TestQuarterPlane_RoundtripFixedField(t *testing.T) {
	t.Parallel()

	// Every stage is exercised with a hand-built field.
	x := randomGrid(t, 33, 10, 7, 3)
	s := x.Shape()
	q := &QuarterPlaneField{
		Order: 3,
		Shape: s,
		C1:    make([]float32, 3*s.Len()),
		C2:    make([]float32, 3*s.Len()),
	}
	for i := range q.C1 {
		q.C1[i], q.C2[i] = 0.1, -0.05
	}
	require.NoError(t, q.Validate())

	f, err := New(1)
	require.NoError(t, err)
	requireQuarterRoundtrip(t, f, q, x, 1e-5)
}

func TestQuarterPlane_ConstantImageIsClipped(t *testing.T) {
	t.Parallel()

	x, err := grid.New2(16, 16)
	require.NoError(t, err)
	x.Fill(1)

	f, err := New(1)
	require.NoError(t, err)
	res, err := f.ApplyQuarterPlane(x, 1)
	require.NoError(t, err)
	q := res.Coefficients
	require.NoError(t, q.Validate())
	requirePairsBounded(t, q, DefaultMaxReflection)
	assert.Positive(t, q.Clipped)

	// Away from the first row and column the left neighbour predicts the
	// sample exactly and the normal equations are singular.
	for i2 := 5; i2 < 12; i2++ {
		for i1 := 5; i1 < 12; i1++ {
			idx := x.Index(i1, i2, 0)
			assert.InDeltaf(t, DefaultMaxReflection, q.C1At(1, idx), 1e-6, "c1 at (%d,%d)", i1, i2)
			assert.Zerof(t, q.C2At(1, idx), "c2 at (%d,%d)", i1, i2)
		}
	}
}

func TestQuarterPlane_ZeroImage(t *testing.T) {
	t.Parallel()

	x, err := grid.New(6, 5, 2)
	require.NoError(t, err)
	f, err := New(1)
	require.NoError(t, err)
	res, err := f.ApplyQuarterPlane(x, 2)
	require.NoError(t, err)
	for i := range res.Coefficients.C1 {
		assert.Zero(t, res.Coefficients.C1[i])
		assert.Zero(t, res.Coefficients.C2[i])
	}
	assert.Zero(t, res.Coefficients.NonFinite)
	assert.Zero(t, energy(res.Residual))
}

func TestQuarterPlane_WhitensCorrelatedImage(t *testing.T) {
	t.Parallel()

	x, err := localstats.Smooth(randomGrid(t, 34, 32, 32, 1), 2)
	require.NoError(t, err)
	f, err := New(6)
	require.NoError(t, err)
	res, err := f.ApplyQuarterPlane(x, 2)
	require.NoError(t, err)
	assert.Less(t, energy(res.Residual), 0.5*energy(x))
}

func TestQuarterPlane_WorkersDeterministic(t *testing.T) {
	t.Parallel()

	x := randomGrid(t, 35, 18, 11, 3)
	f1, err := New(2, WithWorkers(1))
	require.NoError(t, err)
	f4, err := New(2, WithWorkers(4))
	require.NoError(t, err)

	r1, err := f1.ApplyQuarterPlane(x, 2)
	require.NoError(t, err)
	r4, err := f4.ApplyQuarterPlane(x, 2)
	require.NoError(t, err)
	assert.Equal(t, r1.Coefficients.C1, r4.Coefficients.C1)
	assert.Equal(t, r1.Coefficients.C2, r4.Coefficients.C2)
	assert.Equal(t, r1.Residual.Data(), r4.Residual.Data())
}

func TestQuarterPlane_InvalidInput(t *testing.T) {
	t.Parallel()

	f, err := New(2)
	require.NoError(t, err)
	x := randomGrid(t, 36, 8, 6, 1)

	_, err = f.ApplyQuarterPlane(nil, 1)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = f.ApplyQuarterPlane(x, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	res, err := f.ApplyQuarterPlane(x, 1)
	require.NoError(t, err)
	other := randomGrid(t, 37, 8, 7, 1)
	_, err = f.ApplyQuarterPlaneForward(res.Coefficients, other)
	assert.ErrorIs(t, err, grid.ErrShapeMismatch)
	_, err = f.ApplyQuarterPlaneInverse(res.Coefficients, other)
	assert.ErrorIs(t, err, grid.ErrShapeMismatch)
	_, err = f.ApplyQuarterPlaneForward(nil, x)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	q := res.Coefficients
	q.C1[3], q.C2[3] = 0.7, -0.6
	assert.ErrorIs(t, q.Validate(), ErrNumericalInstability)
	q.C2 = q.C2[:5]
	assert.ErrorIs(t, q.Validate(), grid.ErrShapeMismatch)
}
