package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relay-proxy-go/internal/config"
	"relay-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxies *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	for _, r := range proxies.Routes() {
		if r.Mount == "/" {
			e.Any("/", r.Handle)
			e.Any("/*", r.Handle)
			continue
		}
		e.Any(r.Mount, r.Handle)
		e.Any(r.Mount+"/*", r.Handle)
	}
}
