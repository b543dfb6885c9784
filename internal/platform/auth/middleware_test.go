package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, EmailFromContext(c.Request().Context()))
}

func TestMiddleware_LoadsSession(t *testing.T) {
	s := newTestSessions()
	cookie := loginCookie(t, s, false)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/index", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var uid int64
	h := s.Middleware()(func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return okHandler(c)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != 42 {
		t.Errorf("expected user 42, got %d", uid)
	}
	if rec.Body.String() != "jane@x.com" {
		t.Errorf("expected email in context, got %q", rec.Body.String())
	}
	if c.Get(string(UserEmailKey)) != "jane@x.com" {
		t.Error("expected email on echo context for templates")
	}
}

func TestMiddleware_ClearsBadCookie(t *testing.T) {
	s := newTestSessions()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/index", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "garbage"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	h := s.Middleware()(func(c echo.Context) error {
		called = true
		if IsAuthenticated(c.Request().Context()) {
			t.Error("garbage cookie must not authenticate")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("middleware must not reject the request")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected bad cookie to be cleared, got %+v", cookies)
	}
}

func TestRequireLogin_Redirects(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/patient_edit/3?tab=1", nil), rec)

	if err := RequireLogin(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?next=%2Fpatient_edit%2F3%3Ftab%3D1" {
		t.Errorf("unexpected redirect %q", loc)
	}
}

func TestRequireLogin_PassesAuthenticated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/index", nil)
	req = req.WithContext(WithUser(req.Context(), 7, "a@b.c"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RequireLogin(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "a@b.c" {
		t.Errorf("expected handler to run, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequireLoginJSON(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/thmr/data/patient", nil), httptest.NewRecorder())

	err := RequireLoginJSON(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 HTTPError, got %v", err)
	}
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/index"},
		{"/patient_search", "/patient_search"},
		{"/patient_edit/3?tab=1", "/patient_edit/3?tab=1"},
		{"https://evil.example/", "/index"},
		{"//evil.example/path", "/index"},
		{`/\evil.example`, "/index"},
		{"javascript:alert(1)", "/index"},
		{"patient_search", "/index"},
	}
	for _, tt := range tests {
		if got := SafeNext(tt.next, "/index"); got != tt.want {
			t.Errorf("SafeNext(%q) = %q, want %q", tt.next, got, tt.want)
		}
	}
}
