package grid

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallel_CoversRangeOnce(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{0, 1, 3, 8, 100} {
		hits := make([]int32, 37)
		err := Parallel(len(hits), workers, func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
			return nil
		})
		require.NoError(t, err)
		for i, h := range hits {
			assert.Equalf(t, int32(1), h, "workers=%d index %d", workers, i)
		}
	}
}

func TestParallel_PropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := Parallel(10, 4, func(lo, hi int) error {
		if lo == 0 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestParallel_Empty(t *testing.T) {
	t.Parallel()

	called := false
	err := Parallel(0, 4, func(lo, hi int) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}
