// Package layers turns feed FeatureCollections into styled map layers and
// keeps them in named layer groups.
package layers

import (
	"sync"

	"github.com/paulmach/orb/geojson"
)

// Overlay names as shown in the layer control.
const (
	GroupEarthquakes = "Earthquakes"
	GroupFaultLines  = "Fault Lines"
)

// Layer is one rendered map layer.
type Layer interface {
	Feature() *geojson.Feature
}

// Group is a named collection of rendered layers. It is filled by a single
// load and then only read.
type Group struct {
	name string

	mu     sync.RWMutex
	layers []Layer
}

// NewGroup returns an empty group.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Name returns the overlay name.
func (g *Group) Name() string {
	return g.name
}

// Add appends layers to the group.
func (g *Group) Add(layers ...Layer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layers = append(g.layers, layers...)
}

// Len returns the number of layers.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.layers)
}

// Layers returns a copy of the group's layers.
func (g *Group) Layers() []Layer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Layer, len(g.layers))
	copy(out, g.layers)
	return out
}

// FeatureCollection returns the group as styled GeoJSON. An empty group
// yields an empty collection, never nil.
func (g *Group) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range g.Layers() {
		fc.Append(l.Feature())
	}
	return fc
}

// Filter returns a new group with the layers for which keep returns true.
func (g *Group) Filter(keep func(Layer) bool) *Group {
	out := NewGroup(g.name)
	for _, l := range g.Layers() {
		if keep(l) {
			out.layers = append(out.layers, l)
		}
	}
	return out
}
