package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserEmailKey contextKey = "user_email"
)

// Middleware loads the login session of every request into its context. It
// never rejects a request; a cookie that fails verification is cleared.
func (s *Sessions) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := s.Read(c.Request())
			if err != nil {
				if _, cerr := c.Cookie(SessionCookie); cerr == nil {
					s.Logout(c)
				}
				return next(c)
			}

			uid, _ := claims.UserID()
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, uid)
			ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(string(UserEmailKey), claims.Email)
			return next(c)
		}
	}
}

// RequireLogin redirects anonymous requests to the login page, remembering
// where they were going.
func RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if IsAuthenticated(c.Request().Context()) {
			return next(c)
		}
		return c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request().URL.RequestURI()))
	}
}

// RequireLoginJSON answers 401 to anonymous API requests.
func RequireLoginJSON(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !IsAuthenticated(c.Request().Context()) {
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		}
		return next(c)
	}
}

func UserIDFromContext(ctx context.Context) int64 {
	uid, _ := ctx.Value(UserIDKey).(int64)
	return uid
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != 0
}

// SafeNext returns next when it is a local path, otherwise fallback. Anything
// carrying a scheme or host is rejected so the login form cannot be used as
// an open redirect.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}

// WithUser returns ctx carrying a logged-in user; used by tests and CLI code.
func WithUser(ctx context.Context, userID int64, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserEmailKey, email)
}
