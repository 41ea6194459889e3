package httpserver

import (
	"net/http"

	"github.com/yndnr/slotmesh/internal/server/httpserver/handler"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/internal/telemetry/metric"
)

// RouterConfig holds configuration for the control router.
type RouterConfig struct {
	// Controller is the running session.
	Controller handler.Controller

	// Metrics is served on /metrics and counts requests. Optional.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger logger.Logger

	// Token is the bearer token for every route except health checks.
	// Empty disables authentication.
	Token string

	// RateLimit is the per-IP request rate (requests/second). Zero disables it.
	RateLimit float64

	// RateBurst is the per-IP burst size.
	RateBurst int
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit: 50,
		RateBurst: 20,
	}
}

// NewRouter wires the control handler behind the middleware chain.
// Order: Recover -> RequestID -> AccessLog -> RateLimit -> Auth -> Handler.
func NewRouter(cfg *RouterConfig) http.Handler {
	l := logger.OrDefault(cfg.Logger)

	var metricsHandler http.Handler
	if cfg.Metrics != nil {
		metricsHandler = cfg.Metrics.Handler()
	}
	h := handler.New(cfg.Controller, metricsHandler, l)

	middlewares := []Middleware{
		Recover(l),
		RequestID(),
		AccessLog(l, cfg.Metrics),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		middlewares = append(middlewares, RateLimit(cfg.RateLimit, burst))
	}
	middlewares = append(middlewares, Auth(cfg.Token, []string{"/health", "/ready"}))

	return Chain(h, middlewares...)
}
