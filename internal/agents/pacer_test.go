package agents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitterPacer_PausesWithinWindow(t *testing.T) {
	pacer := NewJitterPacer(NewLockedRand(42))

	start := time.Now()
	err := pacer.Pause(context.Background(), 5*time.Millisecond, 20*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
}

func TestJitterPacer_ReturnsContextError(t *testing.T) {
	pacer := NewJitterPacer(NewLockedRand(42))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pacer.Pause(ctx, time.Minute, 2*time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNopPacer_SkipsPauseButHonorsCancellation(t *testing.T) {
	require.NoError(t, NopPacer{}.Pause(context.Background(), time.Hour, 2*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NopPacer{}.Pause(ctx, time.Hour, 2*time.Hour), context.Canceled)
}

func TestIntBetween_StaysInBounds(t *testing.T) {
	rng := NewLockedRand(7)
	for i := 0; i < 200; i++ {
		v := intBetween(rng, 150, 750)
		assert.GreaterOrEqual(t, v, 150)
		assert.LessOrEqual(t, v, 750)
	}
	assert.Equal(t, 5, intBetween(rng, 5, 5))
}

func TestFloatBetween_StaysInBounds(t *testing.T) {
	rng := NewLockedRand(7)
	for i := 0; i < 200; i++ {
		v := floatBetween(rng, 0.87, 0.97)
		assert.GreaterOrEqual(t, v, 0.87)
		assert.Less(t, v, 0.97)
	}
	assert.Equal(t, 0.5, floatBetween(rng, 0.5, 0.5))
}

func TestLockedRand_ConcurrentDraws(t *testing.T) {
	rng := NewLockedRand(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = rng.Float64()
				_ = rng.Intn(10)
			}
		}()
	}
	wg.Wait()
}
