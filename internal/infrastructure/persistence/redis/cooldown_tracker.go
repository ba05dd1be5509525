package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/retry"
)

// CooldownTracker implements orchestration.CooldownTracker. The engine keeps
// cooldowns in memory for the life of a session; this tracker carries them
// across restarts and between sessions of the same learner, so a redeploy
// does not re-propose an intervention the learner just dismissed.
type CooldownTracker struct {
	cache   *Cache
	retrier *retry.Retrier
}

// NewCooldownTracker creates a new CooldownTracker.
func NewCooldownTracker(cache *Cache) *CooldownTracker {
	return &CooldownTracker{
		cache:   cache,
		retrier: retry.CacheRetrier(),
	}
}

// LastProposed returns the unix time an action was last proposed to a
// learner, and false if it never was (or the record expired).
func (t *CooldownTracker) LastProposed(ctx context.Context, learnerID string, action orchestration.Action) (int64, bool, error) {
	val, err := t.cache.GetString(ctx, CooldownKey(learnerID, string(action)))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return 0, false, nil
		}
		return 0, false, err
	}

	atUnix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Corrupt entry, treat as absent.
		return 0, false, nil
	}
	return atUnix, true, nil
}

// MarkProposed records an action proposal.
func (t *CooldownTracker) MarkProposed(ctx context.Context, learnerID string, action orchestration.Action, atUnix int64) error {
	key := CooldownKey(learnerID, string(action))
	val := strconv.FormatInt(atUnix, 10)

	return t.retrier.Do(ctx, func(ctx context.Context) error {
		if err := t.cache.SetString(ctx, key, val, TTLCooldown); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
}
