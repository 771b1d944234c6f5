package middleware

import (
	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/proxy"
)

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from inbound requests and adds security headers to responses. The headers
// are set before the handler runs so they survive a committed response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			proxy.StripHopByHop(c.Request().Header)

			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")

			return next(c)
		}
	}
}
