package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/circuitbreaker"
)

// SnapshotCache implements collective.SnapshotProvider by layering Redis over
// the Postgres snapshot store. Every scored event consults the emergent
// curriculum, so the latest snapshot per course is kept hot; the store is only
// hit on a cold key or when Redis is down.
//
// A stale snapshot is still served. The returned freshness flag is judged
// against the snapshot's own GeneratedAt, and scoring degrades to static
// weights on its side rather than blocking here.
type SnapshotCache struct {
	cache   *Cache
	store   collective.SnapshotStore
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewSnapshotCache creates a new SnapshotCache over the given store.
func NewSnapshotCache(cache *Cache, store collective.SnapshotStore, logger *slog.Logger) *SnapshotCache {
	if logger == nil {
		logger = slog.Default()
	}

	sc := &SnapshotCache{
		cache:  cache,
		store:  store,
		logger: logger,
	}
	sc.breaker = circuitbreaker.CacheBreaker(
		"snapshot-cache",
		func(name string, from, to circuitbreaker.State) {
			logger.Warn("snapshot cache breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Cold keys are expected, only real Redis errors trip the breaker.
		func(err error) bool {
			return !errors.Is(err, ErrCacheMiss)
		},
	)
	return sc
}

// Current returns the latest snapshot of a course and whether it is fresh
// with respect to maxAge.
func (sc *SnapshotCache) Current(ctx context.Context, courseID string, maxAge time.Duration) (*collective.EmergentCurriculum, bool, error) {
	if cur := sc.getCached(ctx, courseID); cur != nil {
		return cur, sc.isFresh(cur, maxAge), nil
	}

	cur, err := sc.store.Latest(ctx, courseID)
	if err != nil {
		return nil, false, err
	}

	if err := sc.cache.Set(ctx, SnapshotKey(courseID), cur, TTLSnapshot); err != nil {
		sc.logger.Warn("failed to cache curriculum snapshot",
			"course_id", courseID,
			"error", err,
		)
	}

	return cur, sc.isFresh(cur, maxAge), nil
}

// getCached reads the cache through the breaker. Any failure, including an
// open circuit, falls through to the store.
func (sc *SnapshotCache) getCached(ctx context.Context, courseID string) *collective.EmergentCurriculum {
	var cur collective.EmergentCurriculum

	err := sc.breaker.Execute(ctx, func(ctx context.Context) error {
		return sc.cache.Get(ctx, SnapshotKey(courseID), &cur)
	})
	if err != nil {
		return nil
	}
	return &cur
}

func (sc *SnapshotCache) isFresh(cur *collective.EmergentCurriculum, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return time.Since(cur.GeneratedAt) <= maxAge
}

// Invalidate drops the cached snapshot of a course. The aggregation worker
// calls this after publishing a new version so sessions pick it up without
// waiting out the TTL.
func (sc *SnapshotCache) Invalidate(ctx context.Context, courseID string) error {
	return sc.cache.Delete(ctx, SnapshotKey(courseID))
}
