package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/circuitbreaker"
)

// ProfileCache implements learner.ProfileCache. Reads go through a circuit
// breaker: the session loop asks for the profile on every event, and a Redis
// outage must degrade to the Postgres repository instead of stalling the loop
// on connection timeouts.
type ProfileCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewProfileCache creates a new ProfileCache.
func NewProfileCache(cache *Cache, logger *slog.Logger) *ProfileCache {
	if logger == nil {
		logger = slog.Default()
	}

	pc := &ProfileCache{
		cache:  cache,
		logger: logger,
	}
	pc.breaker = circuitbreaker.CacheBreaker(
		"profile-cache",
		func(name string, from, to circuitbreaker.State) {
			logger.Warn("profile cache breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A miss is a normal outcome, not a Redis failure.
		func(err error) bool {
			return !errors.Is(err, shared.ErrProfileNotFound)
		},
	)
	return pc
}

// Get returns a cached profile or shared.ErrProfileNotFound.
func (pc *ProfileCache) Get(ctx context.Context, learnerID, courseID string) (*learner.Profile, error) {
	var profile learner.Profile

	err := pc.breaker.Execute(ctx, func(ctx context.Context) error {
		err := pc.cache.Get(ctx, ProfileKey(learnerID, courseID), &profile)
		if errors.Is(err, ErrCacheMiss) {
			// Misses must not trip the breaker, translate before returning.
			return shared.ErrProfileNotFound
		}
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrProfileNotFound) {
			return nil, shared.ErrProfileNotFound
		}
		if circuitbreaker.Rejected(err) {
			// Treat an open circuit as a miss, the caller falls back to Postgres.
			return nil, shared.ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// Set stores a profile.
func (pc *ProfileCache) Set(ctx context.Context, profile *learner.Profile) error {
	if profile == nil {
		return nil
	}
	return pc.cache.Set(ctx, ProfileKey(profile.LearnerID, profile.CourseID), profile, TTLProfile)
}

// Invalidate removes a profile from the cache.
func (pc *ProfileCache) Invalidate(ctx context.Context, learnerID, courseID string) error {
	return pc.cache.Delete(ctx, ProfileKey(learnerID, courseID))
}
