// Package middleware provides Echo middleware for logging, metrics and
// request-target routing.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"subdomain-proxy-go/internal/server"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// The entry is written even when the handler aborts the connection.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			aborted := true

			defer func() {
				req := c.Request()
				res := c.Response()

				attrs := []any{
					"method", req.Method,
					"target", req.RequestURI,
					"status", res.Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote_ip", c.RealIP(),
					"bytes_out", res.Size,
				}
				if id, ok := c.Get(server.ContextKeySessionID).(uint64); ok {
					attrs = append(attrs, "session_id", id)
				}
				if info, ok := server.ConnFromContext(req.Context()); ok {
					attrs = append(attrs, "conn_id", info.ID)
				}
				if aborted {
					attrs = append(attrs, "aborted", true)
				}
				logger.Info("request", attrs...)
			}()

			err = next(c)
			aborted = false
			return err
		}
	}
}
