package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/quake-map-service/internal/circuitbreaker"
	"github.com/kjstillabower/quake-map-service/internal/models"
	"github.com/kjstillabower/quake-map-service/internal/reqctx"
)

const quakeFeedJSON = `{
  "type": "FeatureCollection",
  "metadata": {"title": "USGS All Earthquakes, Past Month"},
  "features": [
    {"type": "Feature", "id": "us7000abcd",
     "properties": {"mag": 4.6, "place": "45 km SSW of Tocopilla, Chile", "time": 1760659200000},
     "geometry": {"type": "Point", "coordinates": [-70.4, -22.5, 35.2]}},
    {"type": "Feature", "id": "ci40000001",
     "properties": {"mag": null, "place": "5km N of Ridgecrest, CA", "time": 1760659300000},
     "geometry": {"type": "Point", "coordinates": [-117.6, 35.7, 8.1]}}
  ]
}`

func newTestClient() *GeoJSONClient {
	return NewGeoJSONClientWithRetry(2*time.Second, 3, time.Millisecond, 5*time.Millisecond)
}

func TestGeoJSONClient_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(quakeFeedJSON))
	}))
	defer server.Close()

	ctx := reqctx.WithCorrelationID(context.Background(), "corr-1")
	fc, err := newTestClient().Fetch(ctx, models.Feed{Name: models.FeedEarthquakes, URL: server.URL})
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	first := fc.Features[0]
	assert.Equal(t, orb.Point{-70.4, -22.5}, first.Geometry)
	assert.Equal(t, 4.6, first.Properties["mag"])
	assert.Equal(t, "45 km SSW of Tocopilla, Chile", first.Properties["place"])
	assert.Nil(t, fc.Features[1].Properties["mag"])
}

func TestGeoJSONClient_Fetch_MalformedJSONNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"type": "FeatureCollection", "features": [`))
	}))
	defer server.Close()

	_, err := newTestClient().Fetch(context.Background(), models.Feed{Name: models.FeedEarthquakes, URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFeed)
	assert.Equal(t, ErrorCategoryParsing, CategorizeError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeoJSONClient_Fetch_NotAFeatureCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type": "Feature", "geometry": null, "properties": {}}`))
	}))
	defer server.Close()

	_, err := newTestClient().Fetch(context.Background(), models.Feed{Name: models.FeedFaultLines, URL: server.URL})
	assert.ErrorIs(t, err, ErrMalformedFeed)
}

func TestGeoJSONClient_Fetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(quakeFeedJSON))
	}))
	defer server.Close()

	fc, err := newTestClient().Fetch(context.Background(), models.Feed{Name: models.FeedEarthquakes, URL: server.URL})
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGeoJSONClient_Fetch_BackoffWaitsOnClock(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(quakeFeedJSON))
	}))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	c := NewGeoJSONClientWithRetry(2*time.Second, 2, time.Second, 2*time.Second)
	c.SetClock(clock)

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		fc, err := c.Fetch(context.Background(), models.Feed{Name: models.FeedEarthquakes, URL: server.URL})
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{n: len(fc.Features)}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1), "client should wait on the clock before retrying")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Base delay 1s plus at most 10% jitter.
	clock.Advance(1100 * time.Millisecond)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, 2, r.n)
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not finish after the backoff elapsed")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGeoJSONClient_Fetch_CanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	c := NewGeoJSONClientWithRetry(2*time.Second, 3, time.Minute, time.Minute)
	c.SetClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, models.Feed{Name: models.FeedEarthquakes, URL: server.URL})
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not return after cancel")
	}
}

func TestGeoJSONClient_Fetch_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient().Fetch(context.Background(), models.Feed{Name: models.FeedEarthquakes, URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.Contains(t, err.Error(), "exhausted retries")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGeoJSONClient_Fetch_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, ErrFeedNotFound},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"forbidden", http.StatusForbidden, ErrUpstreamFailure},
		{"internal error", http.StatusInternalServerError, ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient().Fetch(context.Background(), models.Feed{Name: "test", URL: server.URL})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGeoJSONClient_Fetch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient().Fetch(ctx, models.Feed{Name: "test", URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, ErrorCategoryTimeout, CategorizeError(err))
}

func TestGeoJSONClient_Fetch_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(quakeFeedJSON))
	}))
	defer server.Close()

	c := newTestClient()
	c.maxBodyBytes = 16
	_, err := c.Fetch(context.Background(), models.Feed{Name: "test", URL: server.URL})
	assert.ErrorIs(t, err, ErrMalformedFeed)
}

func TestGeoJSONClient_Fetch_CircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient()
	c.SetCircuitBreaker("earthquakes", circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Timeout:          time.Hour,
		Name:             "earthquakes",
	}))
	feed := models.Feed{Name: "earthquakes", URL: server.URL}

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), feed)
		require.ErrorIs(t, err, ErrFeedNotFound)
	}
	_, err := c.Fetch(context.Background(), feed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Nil(t, c.CircuitBreaker("faultlines"))
}

func TestCalculateBackoff_Capped(t *testing.T) {
	c := NewGeoJSONClientWithRetry(time.Second, 5, 100*time.Millisecond, 300*time.Millisecond)
	d := c.calculateBackoff(4)
	assert.GreaterOrEqual(t, d, 300*time.Millisecond)
	assert.LessOrEqual(t, d, 330*time.Millisecond)
}
