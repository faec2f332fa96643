package main

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/quake-map-service/internal/basemap"
	"github.com/kjstillabower/quake-map-service/internal/cache"
	"github.com/kjstillabower/quake-map-service/internal/circuitbreaker"
	"github.com/kjstillabower/quake-map-service/internal/client"
	"github.com/kjstillabower/quake-map-service/internal/config"
	"github.com/kjstillabower/quake-map-service/internal/models"
	"github.com/kjstillabower/quake-map-service/internal/observability"
	"github.com/kjstillabower/quake-map-service/internal/service"
	"github.com/kjstillabower/quake-map-service/internal/styling"
	"github.com/kjstillabower/quake-map-service/internal/traffic"
)

// app is the wiring shared by serve and export.
type app struct {
	clock       clockwork.Clock
	feeds       []models.Feed
	maps        *service.MapService
	traffic     *traffic.Tracker
	breakers    []*circuitbreaker.CircuitBreaker
	memcached   *cache.MemcachedCache // nil for the in-memory backend
	composition basemap.Composition
	legend      styling.LegendControl
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		clock: clockwork.NewRealClock(),
		feeds: []models.Feed{
			{Name: models.FeedEarthquakes, URL: cfg.EarthquakeFeedURL},
			{Name: models.FeedFaultLines, URL: cfg.FaultLineFeedURL},
		},
	}

	feedClient := client.NewGeoJSONClientWithRetry(
		cfg.FeedTimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	feedClient.SetClock(a.clock)
	if cfg.CircuitBreakerEnabled {
		for _, feed := range a.feeds {
			cb := circuitbreaker.New(circuitbreaker.Config{
				FailureThreshold: cfg.CircuitBreakerFailureThreshold,
				SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
				Timeout:          cfg.CircuitBreakerTimeout,
				Name:             feed.Name,
				Clock:            a.clock,
				OnStateChange: func(name string, from, to circuitbreaker.State) {
					observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
					logger.Warn("circuit breaker transition",
						zap.String("feed", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()),
					)
				},
			})
			feedClient.SetCircuitBreaker(feed.Name, cb)
			observability.CircuitBreakerState.WithLabelValues(feed.Name).Set(0)
			a.breakers = append(a.breakers, cb)
		}
		logger.Info("circuit breakers enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout),
		)
	}

	var store cache.Cache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.memcached = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewInMemoryCache(time.Minute)
		logger.Info("cache backend: in_memory")
	}

	a.traffic = traffic.NewTracker(a.clock)
	a.maps = service.NewMapService(feedClient, store, service.Config{
		Feeds:    a.feeds,
		TTL:      cfg.CacheTTL,
		StaleTTL: cfg.StaleCacheTTL,
		Clock:    a.clock,
		Location: cfg.PopupLocation,
		Outcomes: a.traffic,
	}, logger)

	a.composition = basemap.Compose(cfg.TileAPIKey, basemap.View{Center: cfg.MapCenter, Zoom: cfg.MapZoom})
	a.composition.WarnMissingKey(logger)

	a.legend = styling.NewLegendControl()
	logger.Debug("legend", zap.Any("entries", a.legend.Entries))
	return a, nil
}

func (a *app) close(logger *zap.Logger) {
	if a.memcached == nil {
		return
	}
	if err := a.memcached.Close(); err != nil {
		logger.Error("memcached close", zap.Error(err))
	}
}
