// Package redis implements the hot-path caching layer of the Lumen Adaptive Hub.
// Sessions read learner profiles and curriculum snapshots many times per event;
// this package keeps those reads off Postgres and stores the short-lived
// orchestration state (action cooldowns, celebration signals) that must
// survive a session restart.
//
// Key components:
//   - Cache: general-purpose caching with TTL management
//   - ProfileCache: learner profiles keyed by (learner, course)
//   - SnapshotCache: latest emergent curriculum per course
//   - CooldownTracker: cross-session action cooldowns
//   - CelebrationStore: self-expiring celebration signals
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultConfig returns settings suited to a local instance.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

var (
	// ErrCacheMiss is returned when the requested key is not in the cache.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when the initial ping fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization wraps JSON encode/decode failures.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheKeyEmpty guards against accidental empty keys.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")
)

// Key prefixes namespace the cache by concern.
const (
	PrefixProfile     = "profile:"
	PrefixSnapshot    = "snapshot:"
	PrefixCooldown    = "cooldown:"
	PrefixCelebration = "celebrate:"
)

const (
	// TTLProfile bounds profile staleness after a missed invalidation.
	// Profiles change on every reconciled event batch, so the cache is
	// invalidated explicitly and the TTL is only a backstop.
	TTLProfile = 10 * time.Minute

	// TTLSnapshot covers the cached emergent curriculum. The batch worker
	// republishes far less often than this; freshness is judged against the
	// snapshot's GeneratedAt, not the cache entry.
	TTLSnapshot = 5 * time.Minute

	// TTLCooldown bounds how long a recorded cooldown survives. Far longer
	// than any configured cooldown window.
	TTLCooldown = 7 * 24 * time.Hour
)

// Cache wraps a Redis client with JSON serialization and key hygiene.
// The typed caches in this package are built on top of it.
type Cache struct {
	client *redis.Client
	config Config
}

// NewCache dials Redis and verifies the connection with a ping.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &Cache{client: client, config: cfg}, nil
}

// Client exposes the underlying Redis client. The event bus uses it for
// Pub/Sub; everything else should go through the typed caches.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping reports Redis reachability, used by the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set JSON-encodes value and stores it under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get fetches key and JSON-decodes it into dest. A missing key is ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// SetString stores a raw string, skipping JSON.
func (c *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// GetString fetches a raw string. A missing key is ErrCacheMiss.
func (c *Cache) GetString(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrCacheKeyEmpty
	}
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Delete removes the given keys. Deleting nothing is not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Expire resets the TTL on an existing key.
func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	return c.client.Expire(ctx, key, ttl).Err()
}

// ZAdd inserts member into the sorted set at key with the given score.
// The celebration store scores members by expiry timestamp.
func (c *Cache) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	return c.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRangeByScore returns members whose scores fall in [min, max].
func (c *Cache) ZRangeByScore(ctx context.Context, key, min, max string) ([]string, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}
	return c.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
}

// ZRemRangeByScore removes members whose scores fall in [min, max].
func (c *Cache) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	return c.client.ZRemRangeByScore(ctx, key, min, max).Err()
}

// ProfileKey names the cache entry for one learner in one course.
func ProfileKey(learnerID, courseID string) string {
	return PrefixProfile + learnerID + ":" + courseID
}

// SnapshotKey names the curriculum snapshot entry for a course.
func SnapshotKey(courseID string) string {
	return PrefixSnapshot + courseID
}

// CooldownKey names the cooldown entry for one learner and action.
func CooldownKey(learnerID, action string) string {
	return PrefixCooldown + learnerID + ":" + action
}

// CelebrationKey names the celebration set for a learner.
func CelebrationKey(learnerID string) string {
	return PrefixCelebration + learnerID
}
