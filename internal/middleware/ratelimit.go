package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"relay-proxy-go/internal/config"
)

// RateLimiter returns a per-client-IP limiter backed by Echo's in-memory
// store. Burst equals the rounded-up rate, minimum 1.
func RateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	burst := int(cfg.RequestsPerSecond)
	if float64(burst) < cfg.RequestsPerSecond {
		burst++
	}
	burst = max(burst, 1)

	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:  rate.Limit(cfg.RequestsPerSecond),
		Burst: burst,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(echo.Context, error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(_ echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
