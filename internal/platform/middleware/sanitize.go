package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxHeaderValueSize = 8192

// maxUnescapeRounds bounds how many layers of percent-encoding are peeled off
// a path before it is checked.
const maxUnescapeRounds = 3

var (
	scriptPattern = regexp.MustCompile(`(?i)<\s*script|javascript\s*:|\bon[a-z]+\s*=`)

	// Logged, not blocked: names and addresses legitimately contain quotes.
	sqlPattern = regexp.MustCompile(`(?i)'\s*;\s*drop\b|\bunion\s+(all\s+)?select\b|'\s*or\s+'?\d+'?\s*=\s*'?\d+|\b1\s*=\s*1\b`)
)

// requestCheck returns the reason req must be rejected, or "".
type requestCheck func(req *http.Request) string

var requestChecks = []requestCheck{checkPath, checkHeaders, checkQuery}

// Sanitize answers 400 to requests that fail a request check and logs query
// parameters that look like SQL injection.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, check := range requestChecks {
				if reason := check(req); reason != "" {
					return echo.NewHTTPError(http.StatusBadRequest, reason)
				}
			}

			if params := sqlLikeParams(req.URL.Query()); len(params) > 0 {
				logger.Warn().
					Strs("params", params).
					Str("path", req.URL.Path).
					Str("remote_ip", c.RealIP()).
					Msg("potential SQL injection pattern in query parameters")
			}
			return next(c)
		}
	}
}

func checkPath(req *http.Request) string {
	for _, p := range []string{req.URL.Path, req.URL.RawPath} {
		for _, layer := range unescapedLayers(p) {
			if strings.ContainsRune(layer, 0) {
				return "null byte in path"
			}
			for _, seg := range strings.Split(layer, "/") {
				if seg == ".." {
					return "path traversal"
				}
			}
		}
	}
	return ""
}

func checkHeaders(req *http.Request) string {
	for name, values := range req.Header {
		for _, v := range values {
			switch {
			case len(v) > maxHeaderValueSize:
				return "header value too large: " + name
			case strings.ContainsAny(v, "\r\n"):
				return "line break in header: " + name
			}
		}
	}
	return ""
}

func checkQuery(req *http.Request) string {
	for key, values := range req.URL.Query() {
		if strings.ContainsRune(key, 0) || scriptPattern.MatchString(key) {
			return "unsafe query parameter name"
		}
		for _, v := range values {
			if strings.ContainsRune(v, 0) {
				return "null byte in query parameter " + key
			}
			if scriptPattern.MatchString(v) {
				return "script in query parameter " + key
			}
		}
	}
	return ""
}

// unescapedLayers returns s followed by each successive percent-decoding of
// it, so double-encoded input is seen in plain form.
func unescapedLayers(s string) []string {
	layers := []string{s}
	for i := 0; i < maxUnescapeRounds; i++ {
		next, err := url.PathUnescape(s)
		if err != nil || next == s {
			break
		}
		layers = append(layers, next)
		s = next
	}
	return layers
}

func sqlLikeParams(q url.Values) []string {
	var params []string
	for key, values := range q {
		for _, v := range values {
			if sqlPattern.MatchString(v) {
				params = append(params, key)
				break
			}
		}
	}
	sort.Strings(params)
	return params
}
