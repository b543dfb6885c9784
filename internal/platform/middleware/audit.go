package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/thmr/registry/internal/platform/auth"
)

// AuditEntry describes one access to patient data.
type AuditEntry struct {
	UserID     int64
	UserEmail  string
	Entity     string
	RecordID   string
	Action     string // read, search, create, update
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries in addition to the audit log line.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// Audit logs every request that touches records: the data API and the
// patient form routes. It must run after routing so the route pattern and
// its parameters are known.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if !isAuditableRoute(route) {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserEmail:  auth.EmailFromContext(ctx),
				Entity:     auditedEntity(c),
				RecordID:   c.Param("id"),
				Action:     auditAction(req.Method, c.Param("id") != "", route),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: c.Response().Status,
			}
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				entry.StatusCode = he.Code
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Int64("user_id", entry.UserID).
				Str("user_email", entry.UserEmail).
				Str("entity", entry.Entity).
				Str("record_id", entry.RecordID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

func isAuditableRoute(route string) bool {
	return strings.HasPrefix(route, "/thmr/data/") ||
		strings.HasPrefix(route, "/patient_search") ||
		strings.HasPrefix(route, "/patient_edit/")
}

func auditedEntity(c echo.Context) string {
	if name := c.Param("entity"); name != "" {
		return strings.ToLower(name)
	}
	return "patient"
}

func auditAction(method string, single bool, route string) string {
	switch method {
	case http.MethodPost:
		if strings.HasPrefix(route, "/patient_search") {
			return "search"
		}
		if strings.HasPrefix(route, "/patient_edit/") {
			return "update"
		}
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	}
	if !single {
		return "search"
	}
	return "read"
}
