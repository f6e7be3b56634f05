package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("down")

func newTestBreaker(cfg Config) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker("test", cfg)
	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2, Cooldown: time.Hour})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errDown }), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errDown }), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2})
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errDown })
	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
	_ = cb.Execute(ctx, func() error { return errDown })
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errDown })
	assert.Equal(t, StateOpen, cb.State())

	*clock = clock.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errDown }), errDown)
	assert.Equal(t, StateOpen, cb.State(), "failed trial reopens")

	*clock = clock.Add(time.Minute)
	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerIsSuccessful(t *testing.T) {
	busy := errors.New("busy")
	cb, _ := newTestBreaker(Config{
		FailureThreshold: 1,
		IsSuccessful:     func(err error) bool { return err == nil || errors.Is(err, busy) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func() error { return busy }), busy)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerCancelledContext(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error { called = true; return errDown })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, StateClosed, cb.State())
}
