package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Recover returns echo's panic recovery middleware with panics logged through
// logger. http.ErrAbortHandler is re-panicked by echo before logging, so an
// aborted stream still closes only its own connection.
func Recover(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered",
				"err", err,
				"method", c.Request().Method,
				"target", c.Request().RequestURI,
				"stack", string(stack),
			)
			return err
		},
	})
}
