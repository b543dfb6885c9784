package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/thmr/registry/internal/platform/auth"
	"github.com/thmr/registry/internal/platform/web"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	svc := newTestService(t)
	if _, err := svc.Create(context.Background(), "jane@x.com", "secret123"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	e := echo.New()
	e.Renderer = renderer
	sessions := auth.NewSessions("test-secret-test-secret-test-secret", time.Hour, 24*time.Hour, false)
	return NewHandler(svc, sessions), e
}

func postLogin(e *echo.Echo, target string, form url.Values) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandler_LoginForm(t *testing.T) {
	h, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/login?next=/patient_search", nil)
	rec := httptest.NewRecorder()

	if err := h.LoginForm(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Sign In") || !strings.Contains(body, `name="password"`) {
		t.Errorf("expected login form, got:\n%s", body)
	}
	if !strings.Contains(body, "next=") {
		t.Error("expected the next target to be carried in the form action")
	}
}

func TestHandler_LoginSuccess(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postLogin(e, "/login", url.Values{
		"username":    {"jane@x.com"},
		"password":    {"secret123"},
		"remember_me": {"y"},
	})

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/index" {
		t.Errorf("expected redirect to /index, got %q", loc)
	}
	session := cookieNamed(rec, auth.SessionCookie)
	if session == nil || session.Value == "" {
		t.Fatal("expected a session cookie")
	}
	if session.MaxAge <= 0 {
		t.Error("expected remember-me to set a persistent cookie")
	}
	if cookieNamed(rec, web.FlashCookie) == nil {
		t.Error("expected a flash cookie")
	}
}

func TestHandler_LoginNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"/patient_search", "/patient_search"},
		{"//evil.example.com/", "/index"},
		{"https://evil.example.com/", "/index"},
	}
	for _, tt := range tests {
		h, e := newTestHandler(t)
		c, rec := postLogin(e, "/login?next="+url.QueryEscape(tt.next), url.Values{
			"username": {"jane@x.com"},
			"password": {"secret123"},
		})
		if err := h.Login(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loc := rec.Header().Get(echo.HeaderLocation); loc != tt.want {
			t.Errorf("next=%q: expected redirect to %q, got %q", tt.next, tt.want, loc)
		}
	}
}

func TestHandler_LoginInvalidCredentials(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postLogin(e, "/login", url.Values{
		"username": {"jane@x.com"},
		"password": {"wrong-password"},
	})

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/login" {
		t.Errorf("expected redirect to /login, got %q", loc)
	}
	if cookieNamed(rec, auth.SessionCookie) != nil {
		t.Error("failed login must not set a session")
	}
	if cookieNamed(rec, web.FlashCookie) == nil {
		t.Error("expected a flash cookie")
	}
}

func TestHandler_LoginMissingFields(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postLogin(e, "/login", url.Values{"username": {"jane@x.com"}})

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the form to be re-rendered, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "This field is required.") {
		t.Error("expected a field error")
	}
}

func TestHandler_LoginWhenAuthenticated(t *testing.T) {
	h, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req = req.WithContext(auth.WithUser(req.Context(), 1, "jane@x.com"))
	rec := httptest.NewRecorder()

	if err := h.LoginForm(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); rec.Code != http.StatusFound || loc != "/index" {
		t.Errorf("expected redirect to /index, got %d %q", rec.Code, loc)
	}
}

func TestHandler_Logout(t *testing.T) {
	h, e := newTestHandler(t)
	rec := httptest.NewRecorder()

	if err := h.Logout(e.NewContext(httptest.NewRequest(http.MethodGet, "/logout", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/index" {
		t.Errorf("expected redirect to /index, got %q", loc)
	}
	if ck := cookieNamed(rec, auth.SessionCookie); ck == nil || ck.MaxAge >= 0 {
		t.Error("expected the session cookie to be cleared")
	}
}

func TestHandler_Index(t *testing.T) {
	h, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/index", nil), rec)
	c.Set(web.UserKey, "jane@x.com")

	if err := h.Index(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Hi, jane@x.com!") {
		t.Errorf("expected greeting, got:\n%s", rec.Body.String())
	}
}
