package handler

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	proxies *ProxyHandler
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(proxies *ProxyHandler, v Version) *HealthHandler {
	return &HealthHandler{proxies: proxies, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type routeStatus struct {
	Mount          string `json:"mount"`
	Target         string `json:"target"`
	MemoizedTarget string `json:"memoized_target,omitempty"`
}

type statusResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Routes  []routeStatus `json:"routes"`
}

// Status returns proxy status information, including the target each route
// has memoized so far.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := statusResponse{
		Status:  "ok",
		Version: string(h.version),
		Routes:  make([]routeStatus, 0, len(h.proxies.Routes())),
	}
	for _, r := range h.proxies.Routes() {
		rs := routeStatus{Mount: r.Mount, Target: r.Target}
		if u, err := url.Parse(r.Target); err == nil {
			u.User = nil
			rs.Target = u.String()
		}
		if u := r.MemoizedTarget(); u != nil {
			u.User = nil
			rs.MemoizedTarget = u.String()
		}
		resp.Routes = append(resp.Routes, rs)
	}
	return c.JSON(http.StatusOK, resp)
}
