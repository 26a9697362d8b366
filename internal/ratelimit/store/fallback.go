package store

import (
	"context"
	"log/slog"
	"time"

	"intake/internal/ratelimit/models"
	"intake/pkg/platform/circuit"
)

type bucketAllower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// FallbackStore checks the primary store and switches to a local fallback
// once the breaker opens. The primary keeps being probed so the breaker can
// close again.
type FallbackStore struct {
	primary  bucketAllower
	fallback bucketAllower
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackStore(primary, fallback bucketAllower, breaker *circuit.Breaker, logger *slog.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (s *FallbackStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	res, err := s.primary.Allow(ctx, key, limit, window)
	if err != nil {
		useFallback, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "rate limit store degraded, using in-memory fallback",
				"breaker", s.breaker.Name(),
				"error", err,
			)
		}
		if useFallback {
			return s.fallback.Allow(ctx, key, limit, window)
		}
		return nil, err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "rate limit store recovered", "breaker", s.breaker.Name())
	}
	return res, nil
}
