package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/anomaly-engine/internal/interfaces/http/handler"
	"github.com/dreschagin/anomaly-engine/internal/interfaces/http/middleware"
	"github.com/dreschagin/anomaly-engine/internal/metrics"
	"github.com/dreschagin/anomaly-engine/pkg/config"
	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

// Router настраивает маршруты приложения
type Router struct {
	mux              *http.ServeMux
	statsHandler     *handler.StatsHandler
	websocketHandler *handler.WebSocketHandler
	registry         *prometheus.Registry
	httpMetrics      *metrics.Metrics
	security         config.SecurityConfig
	logger           *logger.Logger
}

// NewRouter создает новый router
func NewRouter(
	statsHandler *handler.StatsHandler,
	websocketHandler *handler.WebSocketHandler,
	registry *prometheus.Registry,
	httpMetrics *metrics.Metrics,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:              http.NewServeMux(),
		statsHandler:     statsHandler,
		websocketHandler: websocketHandler,
		registry:         registry,
		httpMetrics:      httpMetrics,
		security:         security,
		logger:           logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Health endpoints are intentionally unauthenticated for probes.
	rt.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	authMiddleware := middleware.Auth(middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}, rt.logger)

	rateLimiter := middleware.NewIPRateLimiter(rt.security.RateLimitRPS, rt.security.RateLimitBurst)

	// Операционные endpoint'ы
	rt.mux.Handle("/stats", authMiddleware(http.HandlerFunc(rt.statsHandler.GetStats)))
	rt.mux.Handle("/metrics", authMiddleware(promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})))

	// WebSocket поток алертов; auth проверяется внутри handler'а,
	// потому что браузер не может послать Authorization header
	rt.mux.Handle("/ws/alerts", http.HandlerFunc(rt.websocketHandler.HandleConnection))

	// Применяем middleware
	var h http.Handler = rt.mux
	h = middleware.RateLimit(rateLimiter)(h)
	h = rt.httpMetrics.Middleware(h)
	h = middleware.Logger(rt.logger)(h)
	h = middleware.Recovery(rt.logger)(h)

	return h
}
