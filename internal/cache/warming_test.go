package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/quake-map-service/internal/models"
)

type mockFeedFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func (m *mockFeedFetcher) Collection(ctx context.Context, feed string) (models.FeedSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[feed]++
	if err := m.fail[feed]; err != nil {
		return models.FeedSnapshot{}, err
	}
	return models.FeedSnapshot{Feed: feed}, nil
}

func (m *mockFeedFetcher) count(feed string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[feed]
}

var bothFeeds = []string{models.FeedEarthquakes, models.FeedFaultLines}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockFeedFetcher{}
	warmer := NewCacheWarmer(fetcher, nil, nil)

	require.NoError(t, warmer.Warm(context.Background(), bothFeeds))
	assert.Equal(t, 1, fetcher.count(models.FeedEarthquakes))
	assert.Equal(t, 1, fetcher.count(models.FeedFaultLines))
}

func TestCacheWarmer_Warm_EmptyFeeds(t *testing.T) {
	warmer := NewCacheWarmer(&mockFeedFetcher{}, nil, nil)
	assert.NoError(t, warmer.Warm(context.Background(), nil))
}

func TestCacheWarmer_Warm_OneFeedFails(t *testing.T) {
	errDown := errors.New("plates host down")
	fetcher := &mockFeedFetcher{fail: map[string]error{models.FeedFaultLines: errDown}}
	warmer := NewCacheWarmer(fetcher, nil, nil)

	err := warmer.Warm(context.Background(), bothFeeds)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "warm faultlines")
	assert.Equal(t, 1, fetcher.count(models.FeedEarthquakes), "healthy feed still warmed")
}

func TestCacheWarmer_WarmPeriodic(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &mockFeedFetcher{}
	warmer := NewCacheWarmer(fetcher, nil, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- warmer.WarmPeriodic(ctx, bothFeeds, time.Minute) }()

	blockCtx, blockCancel := context.WithTimeout(ctx, 2*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	assert.Zero(t, fetcher.count(models.FeedEarthquakes), "no refresh before the first tick")
	assert.Zero(t, fetcher.count(models.FeedFaultLines))

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return fetcher.count(models.FeedEarthquakes) == 1 && fetcher.count(models.FeedFaultLines) == 1
	}, 2*time.Second, 5*time.Millisecond)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return fetcher.count(models.FeedEarthquakes) == 2 && fetcher.count(models.FeedFaultLines) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("WarmPeriodic did not stop after cancel")
	}
}
