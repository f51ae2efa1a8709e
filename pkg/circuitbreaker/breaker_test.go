package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("dependency down")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("test", cfg)
	cb.now = clock.now
	cb.reset(clock.now())
	return cb, clock
}

func fail() error    { return errDown }
func succeed() error { return nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	}
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestHalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	var transitions []string
	cb, clock := newTestBreaker(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	clock.advance(61 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Minute})

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	clock.advance(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())
}

func TestHalfOpenLimitsProbes(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, MaxRequests: 1, Timeout: time.Minute})

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	clock.advance(2 * time.Minute)

	err := cb.Execute(ctx, func() error {
		return cb.Execute(ctx, succeed)
	})
	assert.ErrorIs(t, err, ErrTooManyRequests)
}

func TestIntervalClearsCounts(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(Config{FailureThreshold: 2, Interval: time.Minute})

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	clock.advance(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().ConsecutiveFailures)
}

func TestCancelledCallsAreNotCounted(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1})

	ctx, cancel := context.WithCancel(context.Background())
	err := cb.Execute(ctx, func() error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Counts().TotalFailures)

	assert.ErrorIs(t, cb.Execute(ctx, succeed), context.Canceled)
}
