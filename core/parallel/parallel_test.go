package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelizeCoversAllItems(t *testing.T) {
	const n = 1037
	seen := make([]int32, n)
	Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, v := range seen {
		require.Equal(t, int32(1), v, "item %d", i)
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)
}

func TestForEachDeterministicOrder(t *testing.T) {
	out := make([]int, 500)
	err := ForEach(context.Background(), len(out), 7, func(i int) error {
		out[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("sample 13 failed")
	var processed int32
	err := ForEach(context.Background(), 200, 1, func(i int) error {
		atomic.AddInt32(&processed, 1)
		if i == 13 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(14), atomic.LoadInt32(&processed))
}

func TestForEachCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := ForEach(ctx, 10, 2, func(i int) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
