// Package service assembles map snapshots: it retrieves feeds through the
// cache and builds the earthquake and fault line layer groups.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/quake-map-service/internal/cache"
	"github.com/kjstillabower/quake-map-service/internal/client"
	"github.com/kjstillabower/quake-map-service/internal/layers"
	"github.com/kjstillabower/quake-map-service/internal/models"
	"github.com/kjstillabower/quake-map-service/internal/observability"
	"github.com/kjstillabower/quake-map-service/internal/reqctx"
)

// ErrUnknownFeed is returned for a feed name the service was not configured with.
var ErrUnknownFeed = errors.New("unknown feed")

// OutcomeRecorder receives one outcome per feed retrieval.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// Config holds MapService settings.
type Config struct {
	Feeds []models.Feed

	// TTL is how long a fetched feed is served without going upstream.
	TTL time.Duration
	// StaleTTL is the maximum age of a snapshot served when upstream fails
	// (0 disables stale serving).
	StaleTTL time.Duration

	Clock    clockwork.Clock
	Location *time.Location  // Popup time zone, UTC if nil
	Outcomes OutcomeRecorder // Optional; a stale serve counts as an error
}

// Snapshot is one load of both overlays. Either group may be empty if its
// feed could not be loaded.
type Snapshot struct {
	Earthquakes *layers.Group
	FaultLines  *layers.Group
}

// MapService retrieves feeds cache-aside with per-feed request coalescing and
// turns them into layer groups.
type MapService struct {
	client   client.FeedClient
	cache    cache.Cache
	feeds    map[string]models.Feed
	ttl      time.Duration
	staleTTL time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger
	loader   *layers.Loader
	outcomes OutcomeRecorder

	inflight singleflight.Group
}

// NewMapService creates a MapService.
func NewMapService(c client.FeedClient, store cache.Cache, cfg Config, logger *zap.Logger) *MapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	feeds := make(map[string]models.Feed, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		feeds[f.Name] = f
	}
	s := &MapService{
		client:   c,
		cache:    store,
		feeds:    feeds,
		ttl:      cfg.TTL,
		staleTTL: cfg.StaleTTL,
		clock:    cfg.Clock,
		logger:   logger,
		outcomes: cfg.Outcomes,
	}
	s.loader = layers.NewLoader(s, logger, cfg.Location)
	return s
}

// Feeds returns the configured feed names.
func (s *MapService) Feeds() []string {
	names := make([]string, 0, len(s.feeds))
	for _, name := range []string{models.FeedEarthquakes, models.FeedFaultLines} {
		if _, ok := s.feeds[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Snapshot loads both overlays concurrently. Each load fills only its own
// group; a failure in one does not affect the other and is never returned.
func (s *MapService) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		Earthquakes: layers.NewGroup(layers.GroupEarthquakes),
		FaultLines:  layers.NewGroup(layers.GroupFaultLines),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loader.LoadEarthquakes(ctx, snap.Earthquakes)
	}()
	go func() {
		defer wg.Done()
		s.loader.LoadFaultLines(ctx, snap.FaultLines)
	}()
	wg.Wait()
	return snap
}

// Earthquakes loads the earthquake overlay.
func (s *MapService) Earthquakes(ctx context.Context) *layers.Group {
	g := layers.NewGroup(layers.GroupEarthquakes)
	s.loader.LoadEarthquakes(ctx, g)
	return g
}

// FaultLines loads the fault line overlay.
func (s *MapService) FaultLines(ctx context.Context) *layers.Group {
	g := layers.NewGroup(layers.GroupFaultLines)
	s.loader.LoadFaultLines(ctx, g)
	return g
}

// Collection returns the current snapshot of feed. A cached snapshot younger
// than the TTL is served directly; otherwise one upstream fetch is shared by
// all concurrent callers. When upstream fails, a cached snapshot no older
// than the stale TTL is served with Stale set.
func (s *MapService) Collection(ctx context.Context, feed string) (models.FeedSnapshot, error) {
	def, ok := s.feeds[feed]
	if !ok {
		return models.FeedSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownFeed, feed)
	}
	logger := reqctx.LoggerOr(ctx, s.logger)

	cached, hit, err := s.cache.Get(ctx, feed)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		logger.Warn("cache get failed", zap.String("feed", feed), zap.Error(err))
		hit = false
	}
	if hit && s.age(cached) < s.ttl {
		observability.CacheHitsTotal.WithLabelValues(feed).Inc()
		logger.Debug("cache hit", zap.String("feed", feed))
		s.recordOutcome(nil)
		return cached, nil
	}

	logger.Debug("cache miss, fetching upstream", zap.String("feed", feed))
	ch := s.inflight.DoChan(feed, func() (interface{}, error) {
		// Detached from ctx: the fetch belongs to every waiter.
		return s.refresh(context.WithoutCancel(ctx), def)
	})

	select {
	case res := <-ch:
		if res.Shared {
			observability.CoalescedRequestsTotal.WithLabelValues(feed).Inc()
		}
		s.recordOutcome(res.Err)
		if res.Err == nil {
			return res.Val.(models.FeedSnapshot), nil
		}
		if hit && s.staleTTL > 0 && s.age(cached) <= s.staleTTL {
			observability.StaleCacheServesTotal.WithLabelValues(feed).Inc()
			logger.Info("serving stale cache",
				zap.String("feed", feed),
				zap.Duration("age", s.age(cached)),
				zap.Error(res.Err))
			cached.Stale = true
			return cached, nil
		}
		return models.FeedSnapshot{}, fmt.Errorf("fetch %s: %w", feed, res.Err)
	case <-ctx.Done():
		s.recordOutcome(ctx.Err())
		return models.FeedSnapshot{}, fmt.Errorf("fetch %s: %w", feed, ctx.Err())
	}
}

func (s *MapService) recordOutcome(err error) {
	if s.outcomes == nil {
		return
	}
	if err != nil {
		s.outcomes.RecordError()
		return
	}
	s.outcomes.RecordSuccess()
}

// refresh fetches feed upstream and stores it. Entries are kept for the
// longer of the two TTLs so stale fallback has something to serve.
func (s *MapService) refresh(ctx context.Context, feed models.Feed) (models.FeedSnapshot, error) {
	fc, err := s.client.Fetch(ctx, feed)
	if err != nil {
		return models.FeedSnapshot{}, err
	}
	snap := models.FeedSnapshot{
		Feed:       feed.Name,
		FetchedAt:  s.clock.Now(),
		Collection: fc,
	}

	keep := s.ttl
	if s.staleTTL > keep {
		keep = s.staleTTL
	}
	if err := s.cache.Set(ctx, feed.Name, snap, keep); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		reqctx.LoggerOr(ctx, s.logger).Warn("cache set failed", zap.String("feed", feed.Name), zap.Error(err))
	}
	return snap, nil
}

func (s *MapService) age(snap models.FeedSnapshot) time.Duration {
	return s.clock.Since(snap.FetchedAt)
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
