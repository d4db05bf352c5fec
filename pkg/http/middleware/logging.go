package middleware

import (
	"time"

	applogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs 5xx responses as errors, 4xx and slow requests as
// warnings and everything else at debug.
func RequestLogging(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			took := time.Since(start)
			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("route", routeOf(c)),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", took),
				applogger.Int64("bytes", c.Response().Size),
				applogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			}
			switch {
			case status >= 500:
				l.Error("http request failed", append(fields, applogger.Error(err))...)
			case status >= 400:
				l.Warn("http request rejected", fields...)
			case slowThreshold > 0 && took >= slowThreshold:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}

// routeOf prefers the registered route template to keep label cardinality low.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}
