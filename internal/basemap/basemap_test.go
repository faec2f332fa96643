package basemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCompose_BaseLayers(t *testing.T) {
	c := Compose("pk.test", DefaultView())

	require.Len(t, c.BaseLayers, 4)
	names := make([]string, 0, len(c.BaseLayers))
	for _, l := range c.BaseLayers {
		names = append(names, l.Name)
		assert.Equal(t, Attribution, l.Attribution)
	}
	assert.Equal(t, []string{"Satellite", "Dark", "Street", "Topographic Map"}, names)

	sat := c.BaseLayers[0]
	assert.Equal(t, "mapbox.satellite", sat.ID)
	assert.Equal(t, 18, sat.MaxZoom)
	assert.Equal(t, "pk.test", sat.AccessToken)
	assert.Contains(t, sat.URL, "{accessToken}")

	topo := c.BaseLayers[3]
	assert.Empty(t, topo.AccessToken)
	assert.False(t, topo.NeedsKey)
	assert.Equal(t, "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png", topo.URL)
}

func TestCompose_OverlaysAndView(t *testing.T) {
	c := Compose("", View{})

	require.Len(t, c.Overlays, 2)
	assert.Equal(t, "Earthquakes", c.Overlays[0].Name)
	assert.Equal(t, "earthquakes", c.Overlays[0].Feed)
	assert.Equal(t, "Fault Lines", c.Overlays[1].Name)
	assert.Equal(t, "faultlines", c.Overlays[1].Feed)

	assert.False(t, c.Collapsed)
	assert.Equal(t, []string{"Satellite", "Earthquakes"}, c.View.Visible)
}

func TestDefaultView(t *testing.T) {
	v := DefaultView()
	assert.Equal(t, [2]float64{37.09, -95.71}, v.Center)
	assert.Equal(t, 4, v.Zoom)
}

func TestMissingKey(t *testing.T) {
	assert.Equal(t, []string{"Satellite", "Dark", "Street"}, Compose("  ", DefaultView()).MissingKey())
	assert.Empty(t, Compose("pk.test", DefaultView()).MissingKey())
}

func TestWarnMissingKey(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	Compose("", DefaultView()).WarnMissingKey(zap.New(core))
	assert.Equal(t, 1, logs.Len())

	Compose("pk.test", DefaultView()).WarnMissingKey(zap.New(core))
	assert.Equal(t, 1, logs.Len())
}
