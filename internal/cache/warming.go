package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/quake-map-service/internal/models"
	"github.com/kjstillabower/quake-map-service/internal/observability"
)

// FeedFetcher is implemented by the service layer to fetch a feed through the cache.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type FeedFetcher interface {
	Collection(ctx context.Context, feed string) (models.FeedSnapshot, error)
}

// CacheWarmer keeps feed snapshots in the cache ahead of page loads.
type CacheWarmer struct {
	fetcher FeedFetcher
	logger  *zap.Logger
	clock   clockwork.Clock
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher FeedFetcher, logger *zap.Logger, clock clockwork.Clock) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, clock: clock}
}

// Warm fetches every feed concurrently. Returns an error joining the feeds
// that failed.
func (w *CacheWarmer) Warm(ctx context.Context, feeds []string) error {
	start := w.clock.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Strings("feeds", feeds))

	var wg sync.WaitGroup
	errCh := make(chan error, len(feeds))
	for _, feed := range feeds {
		wg.Add(1)
		go func(feed string) {
			defer wg.Done()
			if _, err := w.fetcher.Collection(ctx, feed); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", feed, err)
			}
		}(feed)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := w.clock.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete", zap.Int("feeds", len(feeds)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic refreshes the feeds every interval until ctx is done. The first
// refresh happens one interval after the call; callers warm once up front.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, feeds []string, interval time.Duration) error {
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := w.Warm(ctx, feeds); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
