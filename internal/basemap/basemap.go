// Package basemap describes the map's base tile layers, overlays and
// initial view. It is declarative: the page hands the composition to the
// mapping widget as-is.
package basemap

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/quake-map-service/internal/layers"
	"github.com/kjstillabower/quake-map-service/internal/models"
)

// Base layer names as shown in the layer control.
const (
	LayerSatellite   = "Satellite"
	LayerDark        = "Dark"
	LayerStreet      = "Street"
	LayerTopographic = "Topographic Map"
)

// Attribution is shared by every base layer.
const Attribution = `Map data: &copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors, ` +
	`<a href="http://viewfinderpanoramas.org">SRTM</a> | Map style: &copy; ` +
	`<a href="https://opentopomap.org">OpenTopoMap</a> (<a href="https://creativecommons.org/licenses/by-sa/3.0/">CC-BY-SA</a>)`

const (
	satelliteURL   = "https://api.tiles.mapbox.com/v4/{id}/{z}/{x}/{y}.png?access_token={accessToken}"
	darkURL        = "https://api.mapbox.com/styles/v1/mapbox/dark-v10/tiles/{z}/{x}/{y}?access_token={accessToken}"
	streetURL      = "https://api.mapbox.com/styles/v1/mapbox/outdoors-v10/tiles/256/{z}/{x}/{y}?access_token={accessToken}"
	topographicURL = "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png"

	mapboxMaxZoom = 18
)

// TileLayer is a base tile layer. Options follow Leaflet's tileLayer options.
type TileLayer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"maxZoom,omitempty"`
	ID          string `json:"id,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	NeedsKey    bool   `json:"-"`
}

// Overlay is a toggleable data layer served by the service.
type Overlay struct {
	Name string `json:"name"`
	Feed string `json:"feed"`
}

// View is the map's initial state.
type View struct {
	Center  [2]float64 `json:"center"` // lat, lng
	Zoom    int        `json:"zoom"`
	Visible []string   `json:"visible"`
}

// Composition is everything the layer control needs.
type Composition struct {
	BaseLayers []TileLayer `json:"baseLayers"`
	Overlays   []Overlay   `json:"overlays"`
	View       View        `json:"view"`
	Collapsed  bool        `json:"collapsed"`
}

// DefaultView centers on the continental United States with the satellite
// base and earthquake overlay visible.
func DefaultView() View {
	return View{
		Center:  [2]float64{37.09, -95.71},
		Zoom:    4,
		Visible: []string{LayerSatellite, layers.GroupEarthquakes},
	}
}

// Compose builds the composition, attaching apiKey to layers that need it.
func Compose(apiKey string, view View) Composition {
	if len(view.Visible) == 0 {
		view.Visible = DefaultView().Visible
	}
	key := strings.TrimSpace(apiKey)
	return Composition{
		BaseLayers: []TileLayer{
			{
				Name:        LayerSatellite,
				URL:         satelliteURL,
				Attribution: Attribution,
				MaxZoom:     mapboxMaxZoom,
				ID:          "mapbox.satellite",
				AccessToken: key,
				NeedsKey:    true,
			},
			{
				Name:        LayerDark,
				URL:         darkURL,
				Attribution: Attribution,
				MaxZoom:     mapboxMaxZoom,
				AccessToken: key,
				NeedsKey:    true,
			},
			{
				Name:        LayerStreet,
				URL:         streetURL,
				Attribution: Attribution,
				MaxZoom:     mapboxMaxZoom,
				AccessToken: key,
				NeedsKey:    true,
			},
			{
				Name:        LayerTopographic,
				URL:         topographicURL,
				Attribution: Attribution,
			},
		},
		Overlays: []Overlay{
			{Name: layers.GroupEarthquakes, Feed: models.FeedEarthquakes},
			{Name: layers.GroupFaultLines, Feed: models.FeedFaultLines},
		},
		View:      view,
		Collapsed: false,
	}
}

// MissingKey reports the base layers that will not load without a key.
func (c Composition) MissingKey() []string {
	var names []string
	for _, l := range c.BaseLayers {
		if l.NeedsKey && l.AccessToken == "" {
			names = append(names, l.Name)
		}
	}
	return names
}

// WarnMissingKey logs once when keyed base layers have no key. Data layers
// load regardless.
func (c Composition) WarnMissingKey(logger *zap.Logger) {
	if missing := c.MissingKey(); len(missing) > 0 {
		logger.Warn("tile API key not configured; keyed base layers will not load",
			zap.Strings("layers", missing))
	}
}
