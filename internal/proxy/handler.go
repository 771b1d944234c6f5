// Package proxy implements the request-lifecycle pipeline that forwards an
// inbound Echo request to a remote target and relays the response.
//
// A request runs through a fixed sequence of steps: request filter, URL
// resolution, outbound assembly, dispatch, response filter, response
// decoration and delivery. Each step returns a Result that either continues,
// short-circuits (control goes back to the host's next handler, nothing is
// written) or fails (the error goes to the configured error handler).
package proxy

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/options"
)

// Handler proxies requests to one target with one set of options.
type Handler struct {
	target   TargetFunc
	options  *options.Options
	pipeline *Pipeline
}

// NewHandler resolves opts and builds the pipeline. All requests served by
// the returned Handler share the resolved options, including the memoized
// target URL. The metrics parameter is optional.
func NewHandler(target TargetFunc, opts *options.Options, sender Sender, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		target:   target,
		options:  options.Resolve(opts),
		pipeline: NewPipeline(DefaultSteps(sender, m), logger, m),
	}
}

// Options returns the resolved options.
func (h *Handler) Options() *options.Options {
	return h.options
}

// Middleware returns the handler as Echo middleware. next runs when a filter
// skips the request.
func (h *Handler) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return h.Serve(c, next)
		}
	}
}

// HandlerFunc returns the handler as a terminal Echo handler; filtered
// requests end in echo.ErrNotFound.
func (h *Handler) HandlerFunc() echo.HandlerFunc {
	notFound := func(echo.Context) error { return echo.ErrNotFound }
	return func(c echo.Context) error {
		return h.Serve(c, notFound)
	}
}

// Serve runs the pipeline for c.
func (h *Handler) Serve(c echo.Context, next echo.HandlerFunc) error {
	s := NewState(c, h.target, h.options)

	phase, err := h.pipeline.Run(c.Request().Context(), s)
	switch phase {
	case PhaseShortCircuited:
		return next(c)
	case PhaseFailed:
		return h.options.ErrorHandler(err, c, next)
	}
	return nil
}
