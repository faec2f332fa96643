package layers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/quake-map-service/internal/client"
	"github.com/kjstillabower/quake-map-service/internal/models"
	"github.com/kjstillabower/quake-map-service/internal/observability"
	"github.com/kjstillabower/quake-map-service/internal/reqctx"
)

// Source returns the current snapshot of a feed.
type Source interface {
	Collection(ctx context.Context, feed string) (models.FeedSnapshot, error)
}

// Loader fills layer groups from feed snapshots. A failed load leaves its
// group empty; the error is logged and counted but never returned.
type Loader struct {
	source   Source
	logger   *zap.Logger
	location *time.Location
}

// NewLoader creates a Loader. Popup times are rendered in loc (UTC if nil).
func NewLoader(source Source, logger *zap.Logger, loc *time.Location) *Loader {
	if loc == nil {
		loc = time.UTC
	}
	return &Loader{source: source, logger: logger, location: loc}
}

// LoadEarthquakes adds one marker per earthquake to group and returns the
// number added.
func (l *Loader) LoadEarthquakes(ctx context.Context, group *Group) int {
	logger := reqctx.LoggerOr(ctx, l.logger)
	snap, err := l.source.Collection(ctx, models.FeedEarthquakes)
	if err != nil {
		l.recordFailure(logger, group, err)
		return 0
	}

	markers, skipped := BuildEarthquakeLayer(snap.Collection, l.location)
	rendered := make([]Layer, 0, len(markers))
	for _, m := range markers {
		rendered = append(rendered, m)
	}
	group.Add(rendered...)
	l.recordSuccess(logger, group, len(rendered), skipped, snap)
	return len(rendered)
}

// LoadFaultLines adds every plate boundary to group and returns the number added.
func (l *Loader) LoadFaultLines(ctx context.Context, group *Group) int {
	logger := reqctx.LoggerOr(ctx, l.logger)
	snap, err := l.source.Collection(ctx, models.FeedFaultLines)
	if err != nil {
		l.recordFailure(logger, group, err)
		return 0
	}

	shapes, skipped := BuildPlateLayer(snap.Collection)
	rendered := make([]Layer, 0, len(shapes))
	for _, s := range shapes {
		rendered = append(rendered, s)
	}
	group.Add(rendered...)
	l.recordSuccess(logger, group, len(rendered), skipped, snap)
	return len(rendered)
}

func (l *Loader) recordFailure(logger *zap.Logger, group *Group, err error) {
	category := client.CategorizeError(err)
	observability.LayerLoadFailuresTotal.WithLabelValues(group.Name(), string(category)).Inc()
	observability.RecordLayerLoad(group.Name(), 0)
	logger.Warn("layer load failed",
		zap.String("layer", group.Name()),
		zap.String("category", string(category)),
		zap.Error(err))
}

func (l *Loader) recordSuccess(logger *zap.Logger, group *Group, rendered, skipped int, snap models.FeedSnapshot) {
	if skipped > 0 {
		observability.FeaturesSkippedTotal.WithLabelValues(group.Name()).Add(float64(skipped))
	}
	observability.RecordLayerLoad(group.Name(), rendered)
	logger.Debug("layer loaded",
		zap.String("layer", group.Name()),
		zap.Int("rendered", rendered),
		zap.Int("skipped", skipped),
		zap.Bool("stale", snap.Stale),
		zap.Time("fetched_at", snap.FetchedAt))
}
