package http

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/quake-map-service/internal/observability"
	"github.com/kjstillabower/quake-map-service/internal/traffic"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	Traffic        *traffic.Tracker
	InFlight       *InFlightTracker
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// NewRouter wires the routes and middleware. Layer endpoints are rate
// limited and bounded by the request timeout; every response may be gzip
// compressed and carries CORS headers.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.InFlight == nil {
		cfg.InFlight = &InFlightTracker{}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(cfg.Logger))
	router.Use(MetricsMiddleware(cfg.InFlight))
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/", h.GetMap).Methods(http.MethodGet)
	router.HandleFunc("/legend", h.GetLegend).Methods(http.MethodGet)
	router.HandleFunc("/layers", h.GetLayers).Methods(http.MethodGet)

	layerRouter := router.PathPrefix("/layers").Subrouter()
	layerRouter.Use(RateLimitMiddleware(cfg.Limiter, cfg.Traffic))
	if cfg.RequestTimeout > 0 {
		layerRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	layerRouter.HandleFunc("/{name}", h.GetLayer).Methods(http.MethodGet)

	headersOk := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "X-Correlation-ID"})
	originsOk := handlers.AllowedOrigins(cfg.AllowedOrigins)
	methodsOk := handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodOptions})
	exposedOk := handlers.ExposedHeaders([]string{"X-Correlation-ID", "X-Layer-Count"})

	return handlers.CORS(originsOk, headersOk, methodsOk, exposedOk)(handlers.CompressHandler(router))
}
