// Package render produces the HTML map page.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/kjstillabower/quake-map-service/internal/basemap"
	"github.com/kjstillabower/quake-map-service/internal/styling"
)

//go:embed templates/map.html.tmpl
var templates embed.FS

// DefaultTitle is the page title.
const DefaultTitle = "Earthquakes and Tectonic Plates"

// OverlaySource is where the page gets one overlay's features: a URL it
// fetches on load, or data inlined in the page.
type OverlaySource struct {
	Name string                     `json:"name"`
	URL  string                     `json:"url,omitempty"`
	Data *geojson.FeatureCollection `json:"data,omitempty"`
}

// PageData is the template input.
type PageData struct {
	Title       string
	Composition basemap.Composition
	Legend      styling.LegendControl
	Overlays    []OverlaySource
}

// Served returns page data for a page that loads each overlay with its own
// request. urls maps overlay name to layer URL.
func Served(comp basemap.Composition, legend styling.LegendControl, urls map[string]string) PageData {
	data := PageData{Title: DefaultTitle, Composition: comp, Legend: legend}
	for _, o := range comp.Overlays {
		data.Overlays = append(data.Overlays, OverlaySource{Name: o.Name, URL: urls[o.Name]})
	}
	return data
}

// Exported returns page data with every overlay inlined. collections maps
// overlay name to its styled features; a missing entry yields an empty layer.
func Exported(comp basemap.Composition, legend styling.LegendControl, collections map[string]*geojson.FeatureCollection) PageData {
	data := PageData{Title: DefaultTitle, Composition: comp, Legend: legend}
	for _, o := range comp.Overlays {
		fc := collections[o.Name]
		if fc == nil {
			fc = geojson.NewFeatureCollection()
		}
		data.Overlays = append(data.Overlays, OverlaySource{Name: o.Name, Data: fc})
	}
	return data
}

// Page renders the map page.
type Page struct {
	tmpl *template.Template
}

// NewPage parses the embedded page template.
func NewPage() (*Page, error) {
	tmpl, err := template.ParseFS(templates, "templates/map.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Page{tmpl: tmpl}, nil
}

// Render writes the page to w. The page is rendered to a buffer first so a
// template error never leaves a half-written response.
func (p *Page) Render(w io.Writer, data PageData) error {
	if data.Title == "" {
		data.Title = DefaultTitle
	}
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, "map.html.tmpl", data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	return nil
}
