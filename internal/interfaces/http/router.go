package http

import (
	"net/http"

	"github.com/dreschagin/session-telemetry/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/session-telemetry/internal/interfaces/http/handler"
	"github.com/dreschagin/session-telemetry/internal/interfaces/http/middleware"
	"github.com/dreschagin/session-telemetry/pkg/config"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router настраивает маршруты sidecar-процесса
type Router struct {
	mux              *http.ServeMux
	telemetryHandler *handler.TelemetryHandler
	metrics          *metrics.Metrics
	gatherer         prometheus.Gatherer
	server           config.ServerConfig
	security         config.SecurityConfig
	limiter          *middleware.IPRateLimiter
	logger           *logger.Logger
}

// NewRouter создает новый router; metrics и gatherer могут быть nil
func NewRouter(
	telemetryHandler *handler.TelemetryHandler,
	metrics *metrics.Metrics,
	gatherer prometheus.Gatherer,
	server config.ServerConfig,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:              http.NewServeMux(),
		telemetryHandler: telemetryHandler,
		metrics:          metrics,
		gatherer:         gatherer,
		server:           server,
		security:         security,
		limiter:          middleware.NewIPRateLimiter(security.RateLimitRPS, security.RateLimitBurst),
		logger:           logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Пробы доступны без авторизации
	rt.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("GET /readyz", rt.telemetryHandler.Status)
	if rt.gatherer != nil {
		rt.mux.Handle("GET /metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	authMiddleware := middleware.Auth(middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}, rt.logger)
	rateLimit := middleware.RateLimit(rt.limiter)
	decompress := middleware.Decompression(rt.server.MaxBodyBytes)

	// API endpoints
	rt.mux.Handle("POST /api/v1/entries",
		authMiddleware(rateLimit(decompress(http.HandlerFunc(rt.telemetryHandler.SubmitEntries)))))
	rt.mux.Handle("POST /api/v1/lifecycle/suspend", authMiddleware(http.HandlerFunc(rt.telemetryHandler.Suspend)))
	rt.mux.Handle("POST /api/v1/lifecycle/resume", authMiddleware(http.HandlerFunc(rt.telemetryHandler.Resume)))

	// Применяем middleware
	var handler http.Handler = rt.mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = middleware.Logger(rt.logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}

// Close останавливает фоновые задачи router
func (rt *Router) Close() {
	rt.limiter.Stop()
}
