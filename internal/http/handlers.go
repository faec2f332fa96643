package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/quake-map-service/internal/basemap"
	"github.com/kjstillabower/quake-map-service/internal/circuitbreaker"
	"github.com/kjstillabower/quake-map-service/internal/layers"
	"github.com/kjstillabower/quake-map-service/internal/lifecycle"
	"github.com/kjstillabower/quake-map-service/internal/models"
	"github.com/kjstillabower/quake-map-service/internal/observability"
	"github.com/kjstillabower/quake-map-service/internal/render"
	"github.com/kjstillabower/quake-map-service/internal/reqctx"
	"github.com/kjstillabower/quake-map-service/internal/styling"
	"github.com/kjstillabower/quake-map-service/internal/traffic"
	"github.com/kjstillabower/quake-map-service/internal/validation"
)

// MapService loads the map overlays. A failed load yields an empty group.
type MapService interface {
	Earthquakes(ctx context.Context) *layers.Group
	FaultLines(ctx context.Context) *layers.Group
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// Breakers are reported under checks; an open breaker marks the service degraded.
	Breakers []*circuitbreaker.CircuitBreaker
}

// Deps are the Handler's collaborators. Traffic, Lifecycle and Health are optional.
type Deps struct {
	Maps        MapService
	Page        *render.Page
	Composition basemap.Composition
	Legend      styling.LegendControl
	Traffic     *traffic.Tracker
	Lifecycle   *lifecycle.State
	Health      *HealthConfig
	Logger      *zap.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	maps         MapService
	page         *render.Page
	composition  basemap.Composition
	legend       styling.LegendControl
	traffic      *traffic.Tracker
	lifecycle    *lifecycle.State
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Traffic == nil {
		d.Traffic = traffic.NewTracker(nil)
	}
	if d.Lifecycle == nil {
		d.Lifecycle = &lifecycle.State{}
		d.Lifecycle.MarkReady()
	}
	return &Handler{
		maps:         d.Maps,
		page:         d.Page,
		composition:  d.Composition,
		legend:       d.Legend,
		traffic:      d.Traffic,
		lifecycle:    d.Lifecycle,
		healthConfig: d.Health,
		logger:       d.Logger,
	}
}

// GetMap handles GET /. The page fetches each overlay on its own.
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	urls := make(map[string]string, len(h.composition.Overlays))
	for _, o := range h.composition.Overlays {
		urls[o.Name] = "/layers/" + o.Feed
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Render(w, render.Served(h.composition, h.legend, urls)); err != nil {
		reqctx.LoggerOr(r.Context(), h.logger).Error("render map page", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unable to render map")
	}
}

// GetLayers handles GET /layers: base layers, overlays and initial view.
func (h *Handler) GetLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.composition)
}

// GetLegend handles GET /legend.
func (h *Handler) GetLegend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.legend)
}

// GetLayer handles GET /layers/{name}. Load failures are not surfaced: the
// response is an empty collection.
func (h *Handler) GetLayer(w http.ResponseWriter, r *http.Request) {
	name, err := validation.ValidateLayerName(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_LAYER", "layer must be earthquakes or faultlines")
		return
	}
	minMag, filter, err := validation.ValidateMinMagnitude(r.URL.Query().Get("minmag"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_MAGNITUDE", err.Error())
		return
	}

	var group *layers.Group
	switch name {
	case models.FeedEarthquakes:
		group = h.maps.Earthquakes(r.Context())
	case models.FeedFaultLines:
		group = h.maps.FaultLines(r.Context())
	}
	if filter {
		group = group.Filter(layers.AtLeast(minMag))
	}

	body, err := group.FeatureCollection().MarshalJSON()
	if err != nil {
		reqctx.LoggerOr(r.Context(), h.logger).Error("encode layer", zap.String("layer", name), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unable to encode layer")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Layer-Count", strconv.Itoa(group.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"feeds": "healthy"}
	if result.reason == "error_rate_breach" || result.reason == "circuit_open" {
		checks["feeds"] = "unhealthy"
	}
	if h.healthConfig != nil {
		for _, cb := range h.healthConfig.Breakers {
			checks["circuit:"+cb.Name()] = cb.State().String()
		}
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"traffic":   h.trafficSummary(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// trafficSummary reports feed outcomes and rate-limit denials over the
// degraded window (one minute when unset).
func (h *Handler) trafficSummary() map[string]interface{} {
	window := time.Minute
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}
	errs, _ := h.traffic.ErrorRate(window)
	return map[string]interface{}{
		"window":   window.String(),
		"requests": h.traffic.RequestCount(window),
		"errors":   errs,
		"denials":  h.traffic.DenialCount(window),
	}
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > degraded (error rate, open breaker) > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	switch h.lifecycle.Phase() {
	case lifecycle.ShuttingDown:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	case lifecycle.Starting:
		return healthResult{"starting", http.StatusServiceUnavailable, "warming"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		if pct, ok := h.traffic.ErrorPercent(h.healthConfig.DegradedWindow); ok && pct >= float64(h.healthConfig.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	for _, cb := range h.healthConfig.Breakers {
		if cb.State() == circuitbreaker.StateOpen {
			return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": reqctx.CorrelationID(r.Context()),
		},
	})
}
