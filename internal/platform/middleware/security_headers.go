package middleware

import (
	"github.com/labstack/echo/v4"
)

// contentSecurityPolicy allows the inline style and script of the server's
// own pages and nothing from other origins.
const contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; img-src 'self'; form-action 'self'; frame-ancestors 'none'"

// SecurityHeaders sets the response headers every page and API answer
// carries. hsts adds Strict-Transport-Security and is meant for deployments
// served over TLS.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			// Rely on CSP instead of the legacy filter.
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// Patient data must not be cached.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
