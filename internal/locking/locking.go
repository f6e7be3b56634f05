// Package locking serializes ingestions per source so that retention purges
// never race a concurrent snapshot creation.
package locking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/protocol-recon/backend/pkg/logger"
)

var (
	// ErrLockTimeout means the lock could not be taken within the wait budget.
	ErrLockTimeout = errors.New("timed out waiting for ingestion lock")
	// ErrLockHeld means another holder owns the lock right now.
	ErrLockHeld = errors.New("ingestion lock held")
)

// Unlock releases a lock taken by Acquire.
type Unlock func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

// Local is an in-process Locker. It is enough for a single replica.
type Local struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, slots: map[string]chan struct{}{}}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

func (l *Local) Acquire(ctx context.Context, key string) (Unlock, error) {
	s := l.slot(key)

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	start := time.Now()
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, ErrLockTimeout
	}

	if waited := time.Since(start); waited > 100*time.Millisecond {
		logger.Info("Waited for ingestion lock", zap.String("key", key), zap.Duration("waited", waited))
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-s })
		return nil
	}, nil
}
