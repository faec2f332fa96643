package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kjstillabower/quake-map-service/internal/models"
)

// Cache stores decoded feed snapshots by feed name.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.FeedSnapshot, bool, error)
	Set(ctx context.Context, key string, value models.FeedSnapshot, ttl time.Duration) error
}

// InMemoryCache implements Cache on top of go-cache. Safe for concurrent use;
// expired entries are purged every cleanup interval.
type InMemoryCache struct {
	store *gocache.Cache
}

// NewInMemoryCache creates an in-memory cache that purges expired entries
// every cleanupInterval.
func NewInMemoryCache(cleanupInterval time.Duration) *InMemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &InMemoryCache{
		store: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get returns (snapshot, true, nil) on a hit and (zero, false, nil) on a
// miss or an expired entry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.FeedSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.FeedSnapshot{}, false, err
	}
	v, ok := c.store.Get(key)
	if !ok {
		return models.FeedSnapshot{}, false, nil
	}
	snap, ok := v.(models.FeedSnapshot)
	if !ok {
		c.store.Delete(key)
		return models.FeedSnapshot{}, false, nil
	}
	return snap, true, nil
}

// Set stores the snapshot for ttl. A non-positive ttl keeps it until replaced.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.FeedSnapshot, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.store.Set(key, value, ttl)
	return nil
}
