package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "settings:version"
	bumpChannel     = "settings.bump"
)

// Cache holds settings in Redis under a versioned namespace. Invalidation
// bumps the version, so stale entries are never read again and expire on
// their own TTL. A nil cache turns every lookup into a miss, which keeps
// tests and worker processes free of a Redis dependency.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: client, ttl: ttl}
}

// Lookup returns the cached setting and whether it was present.
func (c *Cache) Lookup(ctx context.Context, key string) (Setting, bool, error) {
	if c == nil || c.rdb == nil {
		return Setting{}, false, nil
	}
	slot, err := c.slot(ctx, key)
	if err != nil {
		return Setting{}, false, err
	}
	raw, err := c.rdb.Get(ctx, slot).Bytes()
	if errors.Is(err, redis.Nil) {
		return Setting{}, false, nil
	}
	if err != nil {
		return Setting{}, false, err
	}
	var setting Setting
	if err := json.Unmarshal(raw, &setting); err != nil {
		return Setting{}, false, err
	}
	return setting, true, nil
}

// Store caches a setting under the current version.
func (c *Cache) Store(ctx context.Context, setting Setting) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	slot, err := c.slot(ctx, setting.Key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(setting)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, slot, raw, c.ttl).Err()
}

// Bump invalidates every cached setting at once by incrementing the
// version, then publishes it so other processes follow.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	ver, err := c.rdb.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// slot derives the versioned cache key for a setting.
func (c *Cache) slot(ctx context.Context, key string) (string, error) {
	ver, err := c.rdb.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		ver = 1
		if err := c.rdb.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("settings:%d:%s", ver, key), nil
}
