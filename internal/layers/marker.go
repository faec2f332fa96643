package layers

import (
	"fmt"
	"html"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kjstillabower/quake-map-service/internal/styling"
)

// PopupTimeLayout renders event times the way browsers print a Date.
const PopupTimeLayout = "Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"

// Marker is a circle marker for one earthquake.
type Marker struct {
	ID        interface{}
	Position  orb.Point
	Style     styling.Style
	Popup     string
	Place     string
	Magnitude styling.Magnitude
	Time      time.Time // zero when the feed had no time
}

// Feature implements Layer.
func (m Marker) Feature() *geojson.Feature {
	f := geojson.NewFeature(m.Position)
	f.ID = m.ID
	f.Properties["place"] = m.Place
	if m.Magnitude.Valid {
		f.Properties["mag"] = m.Magnitude.Value
	} else {
		f.Properties["mag"] = nil
	}
	if !m.Time.IsZero() {
		f.Properties["time"] = m.Time.UnixMilli()
	}
	f.Properties["popup"] = m.Popup
	f.Properties["style"] = m.Style
	return f
}

// Popup builds the popup body for an earthquake.
func Popup(place string, at time.Time, mag styling.Magnitude) string {
	when := "unknown"
	if !at.IsZero() {
		when = at.Format(PopupTimeLayout)
	}
	return fmt.Sprintf("<h4>Location: %s</h4><hr><p>Date & Time: %s</p><hr><p>Magnitude: %s</p>",
		html.EscapeString(place), when, mag.String())
}

// BuildEarthquakeLayer turns a feed into markers, one per feature with a
// geometry. Non-point geometries are placed at their bounding-box center.
// The second result counts features skipped for lacking a geometry.
func BuildEarthquakeLayer(fc *geojson.FeatureCollection, loc *time.Location) ([]Marker, int) {
	if fc == nil {
		return nil, 0
	}
	if loc == nil {
		loc = time.UTC
	}
	markers := make([]Marker, 0, len(fc.Features))
	skipped := 0
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			skipped++
			continue
		}
		pos, ok := f.Geometry.(orb.Point)
		if !ok {
			pos = f.Geometry.Bound().Center()
		}

		mag := styling.ParseMagnitude(f.Properties["mag"])
		place, _ := f.Properties["place"].(string)
		at := eventTime(f.Properties["time"], loc)

		markers = append(markers, Marker{
			ID:        f.ID,
			Position:  pos,
			Style:     styling.QuakeStyle(mag),
			Popup:     Popup(place, at, mag),
			Place:     place,
			Magnitude: mag,
			Time:      at,
		})
	}
	return markers, skipped
}

// eventTime reads epoch milliseconds.
func eventTime(v interface{}, loc *time.Location) time.Time {
	var ms int64
	switch t := v.(type) {
	case float64:
		ms = int64(t)
	case int64:
		ms = t
	case int:
		ms = int64(t)
	default:
		return time.Time{}
	}
	return time.UnixMilli(ms).In(loc)
}

// AtLeast keeps markers with a known magnitude of at least threshold. Layers
// that are not markers are kept.
func AtLeast(threshold float64) func(Layer) bool {
	return func(l Layer) bool {
		m, ok := l.(Marker)
		if !ok {
			return true
		}
		return m.Magnitude.Valid && m.Magnitude.Value >= threshold
	}
}
