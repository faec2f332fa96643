package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	jsoniter "github.com/json-iterator/go"

	"github.com/kjstillabower/quake-map-service/internal/models"
)

const keyPrefix = "quakemap:feed:"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MemcachedCache implements Cache using memcached. Values are gzipped JSON;
// the monthly earthquake feed still needs memcached started with a raised
// item size limit (-I).
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: no server addresses in %q", addrs)
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.FeedSnapshot, bool, error) {
	if ctx.Err() != nil {
		return models.FeedSnapshot{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.FeedSnapshot{}, false, nil
		}
		return models.FeedSnapshot{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	snap, err := decodeSnapshot(item.Value)
	if err != nil {
		return models.FeedSnapshot{}, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return snap, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.FeedSnapshot, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := encodeSnapshot(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	if err := c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	}); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}

func encodeSnapshot(snap models.FeedSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(raw []byte) (models.FeedSnapshot, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return models.FeedSnapshot{}, err
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return models.FeedSnapshot{}, err
	}
	var snap models.FeedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.FeedSnapshot{}, err
	}
	return snap, nil
}
