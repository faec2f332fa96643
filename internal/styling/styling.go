// Package styling maps earthquake magnitudes to marker colors and sizes and
// builds the magnitude legend.
package styling

import (
	"strconv"
)

// Marker colors, highest bucket first.
const (
	ColorRed         = "#FF0000"
	ColorOrange      = "#FF6900"
	ColorAmber       = "#FFC100"
	ColorYellowGreen = "#E5FF00"
	ColorGreen       = "#8DFF00"
	ColorPaleGreen   = "#DAF7A6"
)

const (
	markerStrokeColor  = "#000000"
	markerStrokeWeight = 0.5

	plateColor  = "#ff6700"
	plateWeight = 2

	// minRadius replaces a non-positive rendered radius.
	minRadius = 1
)

// Style is a Leaflet path style. Field names match Leaflet's options so the
// value can be handed to the map widget unchanged.
type Style struct {
	FillColor   string  `json:"fillColor,omitempty"`
	Color       string  `json:"color"`
	Radius      float64 `json:"radius,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
	Stroke      bool    `json:"stroke,omitempty"`
	Weight      float64 `json:"weight"`
}

// Magnitude is a feed magnitude that may be absent.
type Magnitude struct {
	Value float64
	Valid bool
}

// Mag returns a valid Magnitude.
func Mag(v float64) Magnitude {
	return Magnitude{Value: v, Valid: true}
}

// ParseMagnitude reads a decoded JSON property value. Anything that is not a
// number yields an invalid Magnitude.
func ParseMagnitude(v interface{}) Magnitude {
	switch m := v.(type) {
	case float64:
		return Mag(m)
	case float32:
		return Mag(float64(m))
	case int:
		return Mag(float64(m))
	case int64:
		return Mag(float64(m))
	default:
		return Magnitude{}
	}
}

// Float returns the magnitude, 0 when invalid.
func (m Magnitude) Float() float64 {
	if !m.Valid {
		return 0
	}
	return m.Value
}

// String renders the magnitude the way the feed wrote it, or "unknown".
func (m Magnitude) String() string {
	if !m.Valid {
		return "unknown"
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// MarkerSize returns the marker radius for magnitude m.
func MarkerSize(m float64) float64 {
	if m == 0 {
		return 1
	}
	return m * 3
}

// ChooseColor returns the fill color for magnitude m. Thresholds are
// exclusive, so a magnitude of exactly 3 falls into the (2,3] bucket.
func ChooseColor(m float64) string {
	switch {
	case m > 5:
		return ColorRed
	case m > 4:
		return ColorOrange
	case m > 3:
		return ColorAmber
	case m > 2:
		return ColorYellowGreen
	case m > 1:
		return ColorGreen
	default:
		return ColorPaleGreen
	}
}

// QuakeStyle returns the marker style for an earthquake. Negative magnitudes
// would give a non-positive radius, which is rendered as 1 instead.
func QuakeStyle(mag Magnitude) Style {
	m := mag.Float()
	radius := MarkerSize(m)
	if radius <= 0 {
		radius = minRadius
	}
	return Style{
		Opacity:     1,
		FillOpacity: 1,
		FillColor:   ChooseColor(m),
		Color:       markerStrokeColor,
		Radius:      radius,
		Stroke:      true,
		Weight:      markerStrokeWeight,
	}
}

// PlateStyle returns the style shared by every plate boundary.
func PlateStyle() Style {
	return Style{
		Color:  plateColor,
		Weight: plateWeight,
	}
}
