package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/quake-map-service/internal/cache"
	"github.com/kjstillabower/quake-map-service/internal/config"
	httphandler "github.com/kjstillabower/quake-map-service/internal/http"
	"github.com/kjstillabower/quake-map-service/internal/lifecycle"
	"github.com/kjstillabower/quake-map-service/internal/observability"
	"github.com/kjstillabower/quake-map-service/internal/render"
)

const (
	initialWarmTimeout     = 30 * time.Second
	inFlightCheckInterval  = 100 * time.Millisecond
	serverReadWriteTimeout = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the map page and its layers over HTTP",
		RunE:  serveCommand,
	}
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	page, err := render.NewPage()
	if err != nil {
		return fmt.Errorf("page template: %w", err)
	}

	state := &lifecycle.State{}
	health := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Breakers:         a.breakers,
	}
	if a.memcached != nil {
		health.CachePing = a.memcached.Ping
	}

	handler := httphandler.NewHandler(httphandler.Deps{
		Maps:        a.maps,
		Page:        page,
		Composition: a.composition,
		Legend:      a.legend,
		Traffic:     a.traffic,
		Lifecycle:   state,
		Health:      health,
		Logger:      logger,
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		Traffic:        a.traffic,
		InFlight:       inFlight,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  serverReadWriteTimeout,
		WriteTimeout: serverReadWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	warmer := cache.NewCacheWarmer(a.maps, logger, a.clock)
	warmUp(ctx, warmer, a.maps.Feeds(), state, logger)

	if cfg.WarmInterval > 0 {
		go func() {
			if err := warmer.WarmPeriodic(ctx, a.maps.Feeds(), cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
	}

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	stop()

	logger.Info("graceful shutdown triggered")
	state.MarkShuttingDown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	if err := inFlight.WaitForZero(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// warmUp runs the initial cache warm and then marks the process ready. Health
// reports starting while it runs; a failed warm still ends in ready.
func warmUp(ctx context.Context, warmer *cache.CacheWarmer, feeds []string, state *lifecycle.State, logger *zap.Logger) {
	warmCtx, cancel := context.WithTimeout(ctx, initialWarmTimeout)
	defer cancel()
	if err := warmer.Warm(warmCtx, feeds); err != nil {
		logger.Warn("cache warming failed", zap.Error(err))
	}
	state.MarkReady()
	logger.Info("service ready", zap.String("phase", state.Phase().String()))
}
