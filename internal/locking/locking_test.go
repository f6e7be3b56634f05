package locking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocol-recon/backend/pkg/circuitbreaker"
)

func TestLocalSerializes(t *testing.T) {
	l := NewLocal(time.Second)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(ctx, "APSA")
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalTimeoutAndIndependentKeys(t *testing.T) {
	l := NewLocal(10 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "APSA")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "APSA")
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := l.Acquire(ctx, "ACONEX")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))

	again, err := l.Acquire(ctx, "APSA")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

type memoryBackend struct {
	mu    sync.Mutex
	keys  map[string]string
	fail  error
	calls int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{keys: map[string]string{}}
}

func (m *memoryBackend) TryLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return false, m.fail
	}
	if _, held := m.keys[key]; held {
		return false, nil
	}
	m.keys[key] = token
	return true, nil
}

func (m *memoryBackend) Unlock(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != token {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func TestRedisAcquireRelease(t *testing.T) {
	backend := newMemoryBackend()
	r := NewRedis(backend, RedisConfig{Wait: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	unlock, err := r.Acquire(ctx, "APSA")
	require.NoError(t, err)
	assert.Contains(t, backend.keys, "recon:lock:APSA")

	_, err = r.Acquire(ctx, "APSA")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, circuitbreaker.StateClosed, r.breaker.State())

	require.NoError(t, unlock(ctx))
	assert.NotContains(t, backend.keys, "recon:lock:APSA")

	unlock, err = r.Acquire(ctx, "APSA")
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestRedisDoesNotReleaseForeignLock(t *testing.T) {
	backend := newMemoryBackend()
	r := NewRedis(backend, RedisConfig{})
	ctx := context.Background()

	unlock, err := r.Acquire(ctx, "ACONEX")
	require.NoError(t, err)

	backend.keys["recon:lock:ACONEX"] = "someone-else"
	require.NoError(t, unlock(ctx))
	assert.Equal(t, "someone-else", backend.keys["recon:lock:ACONEX"])
}

func TestRedisBackendFailureOpensBreaker(t *testing.T) {
	backend := newMemoryBackend()
	backend.fail = errors.New("connection refused")
	r := NewRedis(backend, RedisConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Acquire(ctx, "APSA")
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, r.breaker.State())

	calls := backend.calls
	_, err := r.Acquire(ctx, "APSA")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, calls, backend.calls)
}
