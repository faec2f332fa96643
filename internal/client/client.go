package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"
	"github.com/paulmach/orb/geojson"

	"github.com/kjstillabower/quake-map-service/internal/circuitbreaker"
	"github.com/kjstillabower/quake-map-service/internal/models"
	"github.com/kjstillabower/quake-map-service/internal/observability"
	"github.com/kjstillabower/quake-map-service/internal/reqctx"
)

func init() {
	geojson.CustomJSONMarshaler = jsoniter.ConfigCompatibleWithStandardLibrary
	geojson.CustomJSONUnmarshaler = jsoniter.ConfigCompatibleWithStandardLibrary
}

// FeedClient fetches a GeoJSON FeatureCollection from an upstream feed.
type FeedClient interface {
	Fetch(ctx context.Context, feed models.Feed) (*geojson.FeatureCollection, error)
}

var (
	ErrFeedNotFound    = errors.New("feed not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrMalformedFeed   = errors.New("malformed feed")
)

// DefaultMaxBodyBytes bounds a single feed response. The monthly USGS feed is
// a few tens of megabytes at most.
const DefaultMaxBodyBytes = 128 << 20

type GeoJSONClient struct {
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	maxBodyBytes   int64
	clock          clockwork.Clock

	breakersMu sync.RWMutex
	breakers   map[string]*circuitbreaker.CircuitBreaker
}

func NewGeoJSONClientWithRetry(timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) *GeoJSONClient {
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	return &GeoJSONClient{
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		maxBodyBytes:   DefaultMaxBodyBytes,
		clock:          clockwork.NewRealClock(),
		breakers:       make(map[string]*circuitbreaker.CircuitBreaker),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetClock replaces the clock used for retry backoff and call timing.
func (c *GeoJSONClient) SetClock(clock clockwork.Clock) {
	if clock != nil {
		c.clock = clock
	}
}

// SetCircuitBreaker protects calls to the named feed with cb.
func (c *GeoJSONClient) SetCircuitBreaker(feed string, cb *circuitbreaker.CircuitBreaker) {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	c.breakers[feed] = cb
}

// CircuitBreaker returns the breaker for feed, or nil.
func (c *GeoJSONClient) CircuitBreaker(feed string) *circuitbreaker.CircuitBreaker {
	c.breakersMu.RLock()
	defer c.breakersMu.RUnlock()
	return c.breakers[feed]
}

// Fetch retrieves and decodes feed. Timeouts, 429 and 5xx responses are
// retried with exponential backoff.
func (c *GeoJSONClient) Fetch(ctx context.Context, feed models.Feed) (*geojson.FeatureCollection, error) {
	cb := c.CircuitBreaker(feed.Name)
	if cb == nil {
		return c.fetchWithRetry(ctx, feed)
	}

	var fc *geojson.FeatureCollection
	err := cb.Call(func() error {
		var err error
		fc, err = c.fetchWithRetry(ctx, feed)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, fmt.Errorf("%s: %w", feed.Name, err)
	}
	return fc, err
}

func (c *GeoJSONClient) fetchWithRetry(ctx context.Context, feed models.Feed) (*geojson.FeatureCollection, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.FeedRetriesTotal.WithLabelValues(feed.Name).Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(delay):
			}
		}

		fc, err := c.callFeed(ctx, feed)
		if err == nil {
			return fc, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *GeoJSONClient) callFeed(ctx context.Context, feed models.Feed) (*geojson.FeatureCollection, error) {
	start := c.clock.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, feed.URL, nil)
	if err != nil {
		observability.FeedCallsTotal.WithLabelValues(feed.Name, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	if corrID := reqctx.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.FeedCallsTotal.WithLabelValues(feed.Name, "error").Inc()
		observability.FeedDuration.WithLabelValues(feed.Name, "error").Observe(c.clock.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.FeedCallsTotal.WithLabelValues(feed.Name, status).Inc()
	observability.FeedDuration.WithLabelValues(feed.Name, status).Observe(c.clock.Since(start).Seconds())

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedFeed, c.maxBodyBytes)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrMalformedFeed, feed.Name, err)
	}
	return fc, nil
}

func (c *GeoJSONClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, ErrMalformedFeed) || errors.Is(err, ErrFeedNotFound) {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded")
}

func (c *GeoJSONClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *GeoJSONClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrFeedNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
