package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// RequestTarget returns a Pre middleware that sends requests whose target is
// not origin-form ("*", authority-form, absolute-form) straight to h instead
// of through the router, so h can answer them itself.
func RequestTarget(h echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().RequestURI, "/") {
				return h(c)
			}
			return next(c)
		}
	}
}
