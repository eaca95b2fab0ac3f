package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittofs-embedded/internal/logger"
	"github.com/marmos91/dittofs-embedded/pkg/metrics"
)

// newRouter builds the chi router.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe (persistence healthcheck)
//   - GET /api/v1/node - Node identity and boot information
//   - GET <metrics path> - Prometheus metrics, when enabled
func newRouter(h *handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(instrument(opts.Metrics.HTTP()))
	r.Use(middleware.Recoverer)
	if opts.Config.WriteTimeout > 0 {
		r.Use(middleware.Timeout(opts.Config.WriteTimeout))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.liveness)
		r.Get("/ready", h.readiness)
	})

	r.Get("/api/v1/node", h.node)

	if opts.MetricsConfig.Enabled && opts.Metrics != nil {
		r.Method(http.MethodGet, opts.MetricsConfig.Path, opts.Metrics.Handler())
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		args := []any{
			logger.KeyRequestID, middleware.GetReqID(r.Context()),
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			logger.DurationMs(start),
		}
		if strings.HasPrefix(r.URL.Path, "/health") {
			logger.Debug("HTTP request completed", args...)
			return
		}
		logger.Info("HTTP request completed", args...)
	})
}

// instrument records request counts and latency by route pattern.
func instrument(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			m.RequestStarted()

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RequestFinished(route, r.Method, status, time.Since(start))
		})
	}
}
