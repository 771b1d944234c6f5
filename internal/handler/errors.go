package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/proxy"
)

// ErrorHandler returns the Echo error handler. It turns proxy failures and
// Echo errors into JSON responses. Proxy failures were already logged by the
// pipeline; anything else is logged here.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			logger.Warn("error after response was committed",
				"err", proxy.SanitizeError(err),
				"path", c.Request().URL.Path,
			)
			return
		}

		code, msg := mapError(err)
		if proxy.KindOf(err) == "" && code >= http.StatusInternalServerError {
			logger.Error("request error",
				"err", proxy.SanitizeError(err),
				"path", c.Request().URL.Path,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, map[string]string{"error": msg})
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}

func mapError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	if proxy.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "upstream request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusBadGateway, "client disconnected"
	}

	switch proxy.KindOf(err) {
	case proxy.KindAssembly:
		return http.StatusBadRequest, "invalid request body"
	case proxy.KindResolution:
		return http.StatusBadGateway, "upstream target unavailable"
	case proxy.KindDispatch:
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return http.StatusBadGateway, "upstream host unreachable"
		}
		var urlErr *url.Error
		var opErr *net.OpError
		if errors.As(err, &urlErr) || errors.As(err, &opErr) {
			return http.StatusBadGateway, "upstream connection failed"
		}
		return http.StatusBadGateway, "upstream request failed"
	}
	return http.StatusInternalServerError, "internal proxy error"
}
