package cache

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kjstillabower/quake-map-service/internal/models"
)

func testSnapshot(feed string) models.FeedSnapshot {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{-117.6, 35.7})
	f.Properties["mag"] = 2.3
	f.Properties["place"] = "5km N of Ridgecrest, CA"
	fc.Append(f)
	return models.FeedSnapshot{
		Feed:       feed,
		FetchedAt:  time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		Collection: fc,
	}
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(time.Minute)

	val := testSnapshot(models.FeedEarthquakes)
	if err := c.Set(ctx, models.FeedEarthquakes, val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, models.FeedEarthquakes)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Feed != val.Feed || got.Len() != 1 || !got.FetchedAt.Equal(val.FetchedAt) {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache(time.Minute)

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that expired entries are not returned.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(time.Minute)

	if err := c.Set(ctx, models.FeedFaultLines, testSnapshot(models.FeedFaultLines), time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, models.FeedFaultLines)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
}

// TestInMemoryCache_CanceledContext verifies that a canceled context is reported.
func TestInMemoryCache_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewInMemoryCache(0)

	if err := c.Set(ctx, "k", testSnapshot("k"), time.Minute); err == nil {
		t.Error("Set() error = nil, want context error")
	}
	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("Get() error = nil, want context error")
	}
}

// TestSnapshotCodec verifies that the gzip+JSON memcached encoding keeps the
// features and their properties.
func TestSnapshotCodec(t *testing.T) {
	raw, err := encodeSnapshot(testSnapshot(models.FeedEarthquakes))
	if err != nil {
		t.Fatalf("encodeSnapshot() error = %v", err)
	}
	got, err := decodeSnapshot(raw)
	if err != nil {
		t.Fatalf("decodeSnapshot() error = %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("decoded features = %d, want 1", got.Len())
	}
	f := got.Collection.Features[0]
	if p, ok := f.Geometry.(orb.Point); !ok || p != (orb.Point{-117.6, 35.7}) {
		t.Errorf("geometry = %#v, want point", f.Geometry)
	}
	if f.Properties["place"] != "5km N of Ridgecrest, CA" {
		t.Errorf("place = %v", f.Properties["place"])
	}
}

func TestDecodeSnapshot_NotGzip(t *testing.T) {
	if _, err := decodeSnapshot([]byte(`{"feed":"earthquakes"}`)); err == nil {
		t.Error("decodeSnapshot() error = nil, want gzip header error")
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
	if _, err := NewMemcachedCache(" , ", 0, 0); err == nil {
		t.Error("NewMemcachedCache() with no addresses error = nil, want error")
	}
}
