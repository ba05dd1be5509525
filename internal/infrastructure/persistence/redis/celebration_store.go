package redis

import (
	"context"
	"strconv"
	"time"
)

// CelebrationStore implements orchestration.CelebrationStore with a sorted
// set per learner: member = message, score = expiry unix time. Reads trim
// expired members first, so a signal disappears on its own without a sweeper.
type CelebrationStore struct {
	cache *Cache
}

// NewCelebrationStore creates a new CelebrationStore.
func NewCelebrationStore(cache *Cache) *CelebrationStore {
	return &CelebrationStore{cache: cache}
}

// Push stores a celebration signal with a TTL.
func (s *CelebrationStore) Push(ctx context.Context, learnerID, message string, ttlSeconds int64) error {
	key := CelebrationKey(learnerID)
	expiresAt := time.Now().Unix() + ttlSeconds

	if err := s.cache.ZAdd(ctx, key, float64(expiresAt), message); err != nil {
		return err
	}
	// Bound the whole set too, so an abandoned learner key does not linger.
	return s.cache.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second+time.Minute)
}

// Active returns the learner's signals that have not expired yet.
func (s *CelebrationStore) Active(ctx context.Context, learnerID string) ([]string, error) {
	key := CelebrationKey(learnerID)
	now := strconv.FormatInt(time.Now().Unix(), 10)

	if err := s.cache.ZRemRangeByScore(ctx, key, "-inf", "("+now); err != nil {
		return nil, err
	}
	return s.cache.ZRangeByScore(ctx, key, now, "+inf")
}
