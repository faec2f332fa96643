package models

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// Feed names one upstream GeoJSON source.
type Feed struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Feed names used as cache keys and metric labels.
const (
	FeedEarthquakes = "earthquakes"
	FeedFaultLines  = "faultlines"
)

// FeedSnapshot is one decoded upstream response and the time it was fetched.
type FeedSnapshot struct {
	Feed       string                     `json:"feed"`
	FetchedAt  time.Time                  `json:"fetchedAt"`
	Collection *geojson.FeatureCollection `json:"collection"`
	Stale      bool                       `json:"stale,omitempty"` // Served from cache after an upstream failure
}

// Len returns the number of features in the snapshot, 0 when empty.
func (s FeedSnapshot) Len() int {
	if s.Collection == nil {
		return 0
	}
	return len(s.Collection.Features)
}
