package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"subdomain-proxy-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request. Requests aborted mid-stream are recorded with the
// status that was already sent.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			m.RequestsInFlight.Inc()
			start := time.Now()

			defer func() {
				m.RequestsInFlight.Dec()

				// When a handler returns an *echo.HTTPError the status has not
				// been written yet; echo's error handler does that later.
				statusCode := c.Response().Status
				var he *echo.HTTPError
				if errors.As(err, &he) {
					statusCode = he.Code
				}

				status := strconv.Itoa(statusCode)
				method := metrics.NormalizeMethod(c.Request().Method)
				route := metrics.NormalizeRoute(c.Request().RequestURI)
				duration := time.Since(start).Seconds()

				m.RequestsTotal.WithLabelValues(method, status, route).Inc()
				m.RequestDuration.WithLabelValues(method, status, route).Observe(duration)
			}()

			return next(c)
		}
	}
}
