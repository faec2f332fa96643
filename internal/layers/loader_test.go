package layers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/quake-map-service/internal/client"
	"github.com/kjstillabower/quake-map-service/internal/models"
	"github.com/kjstillabower/quake-map-service/internal/observability"
)

type fakeSource struct {
	snapshots map[string]models.FeedSnapshot
	errs      map[string]error
}

func (f *fakeSource) Collection(_ context.Context, feed string) (models.FeedSnapshot, error) {
	if err, ok := f.errs[feed]; ok {
		return models.FeedSnapshot{}, err
	}
	return f.snapshots[feed], nil
}

func newSource(t *testing.T) *fakeSource {
	return &fakeSource{
		snapshots: map[string]models.FeedSnapshot{
			models.FeedEarthquakes: {Feed: models.FeedEarthquakes, Collection: decode(t, quakeFeed), FetchedAt: time.Now()},
			models.FeedFaultLines:  {Feed: models.FeedFaultLines, Collection: decode(t, plateFeed), FetchedAt: time.Now()},
		},
		errs: map[string]error{},
	}
}

func TestLoader_LoadEarthquakes(t *testing.T) {
	loader := NewLoader(newSource(t), zap.NewNop(), nil)
	group := NewGroup(GroupEarthquakes)

	n := loader.LoadEarthquakes(context.Background(), group)

	assert.Equal(t, 3, n)
	assert.Equal(t, 3, group.Len())
	assert.Equal(t, 3.0, testutil.ToFloat64(observability.LayerFeatures.WithLabelValues(GroupEarthquakes)))
}

func TestLoader_LoadFaultLines(t *testing.T) {
	before := testutil.ToFloat64(observability.FeaturesSkippedTotal.WithLabelValues(GroupFaultLines))
	loader := NewLoader(newSource(t), zap.NewNop(), time.UTC)
	group := NewGroup(GroupFaultLines)

	n := loader.LoadFaultLines(context.Background(), group)

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, group.Len())
	after := testutil.ToFloat64(observability.FeaturesSkippedTotal.WithLabelValues(GroupFaultLines))
	assert.Equal(t, 1.0, after-before)
}

func TestLoader_FailureLeavesGroupEmpty(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := newSource(t)
	src.errs[models.FeedEarthquakes] = fmt.Errorf("fetch earthquakes: %w", client.ErrUpstreamFailure)
	before := testutil.ToFloat64(observability.LayerLoadFailuresTotal.WithLabelValues(GroupEarthquakes, "upstream_5xx"))

	loader := NewLoader(src, zap.New(core), nil)
	group := NewGroup(GroupEarthquakes)
	n := loader.LoadEarthquakes(context.Background(), group)

	assert.Zero(t, n)
	assert.Zero(t, group.Len())
	assert.Empty(t, group.FeatureCollection().Features)

	after := testutil.ToFloat64(observability.LayerLoadFailuresTotal.WithLabelValues(GroupEarthquakes, "upstream_5xx"))
	assert.Equal(t, 1.0, after-before)

	entries := logs.FilterMessage("layer load failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, GroupEarthquakes, fields["layer"])
	assert.Equal(t, "upstream_5xx", fields["category"])
}

func TestLoader_IndependentLoads(t *testing.T) {
	src := newSource(t)
	src.errs[models.FeedFaultLines] = context.DeadlineExceeded
	loader := NewLoader(src, zap.NewNop(), nil)

	quakes := NewGroup(GroupEarthquakes)
	plates := NewGroup(GroupFaultLines)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		loader.LoadFaultLines(context.Background(), plates)
	}()
	go func() {
		defer wg.Done()
		loader.LoadEarthquakes(context.Background(), quakes)
	}()
	wg.Wait()

	assert.Equal(t, 3, quakes.Len())
	assert.Zero(t, plates.Len())
}
