package agents

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer simulates work between progress checkpoints. Pause returns the
// context error if the deadline expires first.
type Pacer interface {
	Pause(ctx context.Context, min, max time.Duration) error
}

// JitterPacer sleeps a random duration within the given window.
type JitterPacer struct {
	rng Rand
}

// NewJitterPacer creates a pacer drawing jitter from rng.
func NewJitterPacer(rng Rand) *JitterPacer {
	if rng == nil {
		rng = NewLockedRand(0)
	}
	return &JitterPacer{rng: rng}
}

// Pause sleeps between min and max, or returns early when ctx is done.
func (p *JitterPacer) Pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(p.rng.Float64() * float64(max-min))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NopPacer skips all pauses. It still honors an already-expired context so
// cancellation paths stay testable.
type NopPacer struct{}

// Pause implements Pacer.
func (NopPacer) Pause(ctx context.Context, _, _ time.Duration) error {
	return ctx.Err()
}

// Rand is the randomness source agents draw from.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// LockedRand is a goroutine-safe Rand. Agents are shared across concurrent
// incident runs, so the underlying source needs locking.
type LockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedRand creates a LockedRand. A zero seed falls back to the current
// time.
func NewLockedRand(seed int64) *LockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &LockedRand{rng: rand.New(rand.NewSource(seed))}
}

// Float64 returns a random float in [0, 1).
func (r *LockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Intn returns a random int in [0, n).
func (r *LockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// intBetween returns a random int in [min, max].
func intBetween(rng Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + rng.Intn(max-min+1)
}

// floatBetween returns a random float in [min, max).
func floatBetween(rng Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rng.Float64()*(max-min)
}
