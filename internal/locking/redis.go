package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/protocol-recon/backend/pkg/circuitbreaker"
	"github.com/protocol-recon/backend/pkg/logger"
	"github.com/protocol-recon/backend/pkg/retry"
)

// Backend is the key-value primitive the distributed lock needs. It is
// implemented by the redis cache client.
type Backend interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) (bool, error)
}

type RedisConfig struct {
	Prefix       string
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

// Redis is a Locker shared by every replica pointed at the same redis.
// Each lock carries a random token so that only its owner can release it.
type Redis struct {
	backend Backend
	cfg     RedisConfig
	breaker *circuitbreaker.CircuitBreaker
}

func NewRedis(backend Backend, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "recon:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}

	return &Redis{
		backend: backend,
		cfg:     cfg,
		breaker: circuitbreaker.NewCircuitBreaker("redis-lock", circuitbreaker.Config{
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrLockHeld)
			},
			Logger: logger.GetLogger(),
		}),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Unlock, error) {
	fullKey := r.cfg.Prefix + key
	token := uuid.NewString()

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:     retry.AttemptsWithin(r.cfg.Wait, r.cfg.PollInterval),
		InitialDelay:    r.cfg.PollInterval,
		MaxDelay:        r.cfg.PollInterval,
		Multiplier:      1,
		JitterFraction:  0.2,
		RetryableErrors: []error{ErrLockHeld},
		Logger:          logger.GetLogger(),
	}, func() error {
		return r.breaker.Execute(ctx, func() error {
			ok, err := r.backend.TryLock(ctx, fullKey, token, r.cfg.TTL)
			if err != nil {
				return err
			}
			if !ok {
				return ErrLockHeld
			}
			return nil
		})
	})
	if errors.Is(err, ErrLockHeld) {
		return nil, ErrLockTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}

	return func(ctx context.Context) error {
		released, err := r.backend.Unlock(ctx, fullKey, token)
		if err != nil {
			return err
		}
		if !released {
			logger.Warn("Ingestion lock expired before release", zap.String("key", fullKey))
		}
		return nil
	}, nil
}
