package layers

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kjstillabower/quake-map-service/internal/styling"
)

// Shape is a line or polygon drawn with a fixed style.
type Shape struct {
	ID         interface{}
	Geometry   orb.Geometry
	Style      styling.Style
	Properties geojson.Properties
}

// Feature implements Layer. Feed properties are kept; style is added.
func (s Shape) Feature() *geojson.Feature {
	f := geojson.NewFeature(s.Geometry)
	f.ID = s.ID
	for k, v := range s.Properties {
		f.Properties[k] = v
	}
	f.Properties["style"] = s.Style
	return f
}

// BuildPlateLayer styles every plate boundary identically, whatever its
// properties. Features without geometry are skipped and counted.
func BuildPlateLayer(fc *geojson.FeatureCollection) ([]Shape, int) {
	if fc == nil {
		return nil, 0
	}
	style := styling.PlateStyle()
	shapes := make([]Shape, 0, len(fc.Features))
	skipped := 0
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			skipped++
			continue
		}
		shapes = append(shapes, Shape{
			ID:         f.ID,
			Geometry:   f.Geometry,
			Style:      style,
			Properties: f.Properties,
		})
	}
	return shapes, skipped
}
