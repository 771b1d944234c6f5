package handler

import (
	"log/slog"
	"net/url"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/config"
	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/proxy"
)

// Route is one mounted proxy.
type Route struct {
	Mount  string
	Target string

	proxy *proxy.Handler
}

// MemoizedTarget returns the target URL cached by the route, or nil when no
// request has resolved it yet.
func (r *Route) MemoizedTarget() *url.URL {
	return r.proxy.Options().MemoizedURL()
}

// Handle proxies the request. Requests skipped by a filter end in 404.
func (r *Route) Handle(c echo.Context) error {
	return r.proxy.HandlerFunc()(c)
}

// ProxyHandler holds the configured routes.
type ProxyHandler struct {
	routes []*Route
	logger *slog.Logger
}

// NewProxyHandler builds one proxy per configured route. Every route gets its
// own resolved options and therefore its own memoized target.
func NewProxyHandler(cfg *config.Config, sender proxy.Sender, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	logger = logger.With("component", "proxy_handler")

	routes := make([]*Route, 0, len(cfg.Routes))
	for i := range cfg.Routes {
		rc := &cfg.Routes[i]
		routes = append(routes, &Route{
			Mount:  rc.Mount,
			Target: rc.Target,
			proxy:  proxy.NewHandler(proxy.StaticTarget(rc.Target), rc.Options(), sender, logger, m),
		})
		logger.Info("route configured", "mount", rc.Mount, "target", rc.Target)
	}

	return &ProxyHandler{routes: routes, logger: logger}
}

// Routes returns the configured routes in config order.
func (h *ProxyHandler) Routes() []*Route {
	return h.routes
}
