package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitaliisemenov/svc-facilitator/internal/api/middleware"
	"github.com/vitaliisemenov/svc-facilitator/internal/api/problem"
	"github.com/vitaliisemenov/svc-facilitator/internal/facilitator"
)

// RouterConfig holds router configuration: which middleware to enable and
// the service identity this facilitator instance mirrors policy for.
type RouterConfig struct {
	ServiceSlug string

	EnableRateLimit   bool
	EnableCompression bool
	EnableCORS        bool
	EnableMetrics     bool

	MetricsPath string

	CORSConfig middleware.CORSConfig

	RateLimitPerMinute int
	RateLimitBurst     int

	Logger *slog.Logger
}

// DefaultRouterConfig returns the facilitator's default router
// configuration for the given service slug.
func DefaultRouterConfig(serviceSlug string, logger *slog.Logger) RouterConfig {
	return RouterConfig{
		ServiceSlug:        serviceSlug,
		EnableRateLimit:    true,
		EnableCompression:  true,
		EnableCORS:         true,
		EnableMetrics:      true,
		MetricsPath:        "/metrics",
		RateLimitPerMinute: 600,
		RateLimitBurst:     100,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
	}
}

// NewRouter builds the facilitator's HTTP router.
//
// The middleware stack is applied in order:
//  1. Recovery (always, mounted first so a panic anywhere below is caught)
//  2. RequestID (always)
//  3. Logging (always)
//  4. Metrics (if enabled)
//  5. CORS (if enabled)
//  6. Compression (if enabled)
//  7. RateLimit (if enabled, mutating routes only)
//
// Resolve is publicly readable within the mesh; push is expected to sit
// behind an S2S-authenticated edge provided by an external collaborator,
// so no AuthMiddleware is mounted here.
func NewRouter(store *facilitator.Store, config RouterConfig) *mux.Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	router := mux.NewRouter()

	router.Use(middleware.RecoveryMiddleware(config.Logger))
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(config.Logger))

	if config.EnableMetrics {
		router.Use(middleware.MetricsMiddleware)
	}
	if config.EnableCORS {
		router.Use(middleware.CORSMiddleware(config.CORSConfig))
	}
	if config.EnableCompression {
		router.Use(middleware.CompressionMiddleware)
	}

	h := NewHandlers(store, config.Logger)

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.Ready).Methods(http.MethodGet)

	if config.EnableMetrics {
		metricsPath := config.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		router.Handle(metricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}

	base := fmt.Sprintf("/api/%s/v1", config.ServiceSlug)
	v1 := router.PathPrefix(base).Subrouter()

	v1.HandleFunc("/resolve", h.Resolve).Methods(http.MethodGet)
	v1.HandleFunc("/resolve/{slug}/v{version}", h.ResolvePath).Methods(http.MethodGet)
	v1.HandleFunc("/mirror", h.Mirror).Methods(http.MethodGet)

	push := v1.NewRoute().Subrouter()
	if config.EnableRateLimit {
		push.Use(middleware.RateLimitMiddleware(config.RateLimitPerMinute, config.RateLimitBurst))
	}
	push.HandleFunc("/mirror/load", h.MirrorLoad).Methods(http.MethodPost)

	// The path guard: anything outside the mounted base (wrong slug, wrong
	// version prefix) is a 404, not a framework default 404 page.
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestID(r.Context())
		problem.WriteNotFoundPath(w, requestID, fmt.Sprintf("no route mounted at %s", r.URL.Path))
	})

	return router
}
