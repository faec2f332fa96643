// Package validation checks path and query parameters of the layer endpoints.
package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/quake-map-service/internal/models"
)

// ErrUnknownLayer is returned for a layer name other than earthquakes or faultlines.
var ErrUnknownLayer = errors.New("unknown layer")

// ErrMagnitudeInvalid is returned when minmag is not a finite number.
var ErrMagnitudeInvalid = errors.New("magnitude must be a number")

// ErrMagnitudeOutOfRange is returned when minmag is outside MinMagnitude..MaxMagnitude.
var ErrMagnitudeOutOfRange = errors.New("magnitude out of range")

// Bounds for the minmag filter. Catalogued magnitudes run slightly negative
// for micro-quakes; nothing exceeds 10.
const (
	MinMagnitude = -2.0
	MaxMagnitude = 10.0
)

// ValidateLayerName trims and lowercases name and returns the feed it names.
func ValidateLayerName(name string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	switch s {
	case models.FeedEarthquakes, models.FeedFaultLines:
		return s, nil
	default:
		return "", ErrUnknownLayer
	}
}

// ValidateMinMagnitude parses the minmag query value. An empty value means
// no filter and returns ok=false.
func ValidateMinMagnitude(raw string) (value float64, ok bool, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, ErrMagnitudeInvalid
	}
	if v < MinMagnitude || v > MaxMagnitude {
		return 0, false, ErrMagnitudeOutOfRange
	}
	return v, true, nil
}
