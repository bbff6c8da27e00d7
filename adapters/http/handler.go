// Package http assembles the server handler: shared middleware, health
// and version probes, metrics and API docs, with the model routes mounted
// underneath.
package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/artpar/apigen/adapters/metrics"
)

// Well-known paths served outside the model routes.
const (
	HealthPath  = "/healthz"
	VersionPath = "/version"
	OpenAPIPath = "/openapi.json"
	SwaggerPath = "/swagger"
)

// DefaultTimeout bounds a request when RouterConfig.Timeout is unset.
const DefaultTimeout = 60 * time.Second

// VersionResponse is the body of /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// RouterConfig holds the parts mounted by NewRouter.
type RouterConfig struct {
	// API serves the model routes. Unmatched requests fall through to it
	// so 404s carry the API error envelope.
	API http.Handler

	Metrics *metrics.Collector

	// MetricsHandler serves MetricsPath. Defaults to promhttp.Handler()
	// when Metrics is set.
	MetricsHandler http.Handler
	MetricsPath    string

	// OpenAPI serves the OpenAPI document. Swagger UI is mounted only
	// when both OpenAPI and EnableSwagger are set.
	OpenAPI       http.Handler
	EnableSwagger bool

	Timeout time.Duration
	Version string
}

// NewRouter creates the main HTTP router.
func NewRouter(logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	internal := internalPaths(cfg)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, internal))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(cfg.Timeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, internal))
	}

	r.Get(HealthPath, Health)
	r.Get(VersionPath, VersionHandler(cfg.Version))

	if cfg.MetricsHandler != nil {
		r.Handle(cfg.MetricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	if cfg.OpenAPI != nil {
		r.Get(OpenAPIPath, func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			cfg.OpenAPI.ServeHTTP(w, req)
		})
		if cfg.EnableSwagger {
			r.Get(SwaggerPath+"/*", httpSwagger.Handler(
				httpSwagger.URL(OpenAPIPath),
			))
		}
	}

	if cfg.API != nil {
		r.Mount("/", cfg.API)
	}

	return r
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// VersionHandler returns the service version.
func VersionHandler(version string) http.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(VersionResponse{
			Version: version,
			Service: "apigen",
		})
	}
}

// internalPaths reports whether a path is an operability endpoint that is
// neither logged nor measured.
func internalPaths(cfg RouterConfig) func(path string) bool {
	return func(path string) bool {
		return path == HealthPath ||
			path == cfg.MetricsPath ||
			path == OpenAPIPath ||
			strings.HasPrefix(path, SwaggerPath+"/")
	}
}

// NewMetricsMiddleware creates middleware that records request metrics,
// labelled by the matched route pattern.
func NewMetricsMiddleware(m *metrics.Collector, skip func(string) bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip != nil && skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			m.ObserveRequest(r.Method, routePattern(r), ww.Status(), time.Since(start))
		})
	}
}

// routePattern returns the chi pattern that served r, or "" when nothing
// matched.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	pattern := rctx.RoutePattern()
	if pattern == "/*" {
		return ""
	}
	return pattern
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger, skip func(string) bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if skip != nil && skip(r.URL.Path) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
