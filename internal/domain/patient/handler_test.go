package patient

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/thmr/registry/internal/platform/web"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	t.Helper()
	f := newFixture(t)
	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	e := echo.New()
	e.Renderer = renderer
	return NewHandler(f.svc), f, e
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func TestHandler_SearchForm(t *testing.T) {
	h, _, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	if err := h.SearchForm(e.NewContext(httptest.NewRequest(http.MethodGet, "/patient_search", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Patient Search") || strings.Contains(body, "Results") {
		t.Errorf("expected an empty search form, got:\n%s", body)
	}
}

func TestHandler_Search(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.seed(t)

	rec := httptest.NewRecorder()
	req := formRequest(http.MethodPost, "/patient_search", url.Values{"name": {"doe"}})
	if err := h.Search(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	jane := strings.Index(body, "Jane Doe")
	john := strings.Index(body, "John Doe")
	if jane < 0 || john < 0 || jane > john {
		t.Errorf("expected Jane then John in results, got:\n%s", body)
	}
	if strings.Contains(body, "Zoe Smith") {
		t.Error("Zoe must not match")
	}
	if !strings.Contains(body, "555-1000, 555-7777") {
		t.Error("expected both phone numbers")
	}
	if !strings.Contains(body, `value="doe"`) {
		t.Error("expected the form to keep its values")
	}
}

func TestHandler_SearchNoMatch(t *testing.T) {
	h, _, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	req := formRequest(http.MethodPost, "/patient_search", url.Values{"name": {"nobody"}})
	if err := h.Search(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "No patients match.") {
		t.Errorf("expected empty result message, got:\n%s", rec.Body.String())
	}
}

func TestHandler_EditForm(t *testing.T) {
	h, f, e := newTestHandler(t)
	p := f.add(t, &Patient{Name: "Jane Doe", Phone1: strPtr("555-1000")})

	rec := httptest.NewRecorder()
	c := withID(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), "1")
	if err := h.EditForm(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `value="Jane Doe"`) || !strings.Contains(body, `value="555-1000"`) {
		t.Errorf("expected a pre-filled form, got:\n%s", body)
	}
	if !strings.Contains(body, `action="/patient_edit/1"`) {
		t.Errorf("expected form to post back to patient %d", p.ID)
	}
}

func TestHandler_EditFormNotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	for _, id := range []string{"42", "abc", "0"} {
		c := withID(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()), id)
		err := h.EditForm(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusNotFound {
			t.Errorf("id %q: expected 404, got %v", id, err)
		}
	}
}

func TestHandler_Edit(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.add(t, &Patient{Name: "Jane Doe"})

	rec := httptest.NewRecorder()
	req := formRequest(http.MethodPost, "/", url.Values{
		"name":  {"Jane Q. Doe"},
		"email": {"jane@x.com"},
		"phone": {"555-3000"},
	})
	if err := h.Edit(withID(e.NewContext(req, rec), "1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Patient details have been updated.") {
		t.Errorf("expected flash on the same page, got:\n%s", body)
	}

	got, err := f.svc.Get(req.Context(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Jane Q. Doe" || deref(got.Phone1) != "555-3000" {
		t.Errorf("unexpected stored patient %+v", got)
	}
}

func TestHandler_EditInvalid(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.add(t, &Patient{Name: "Jane Doe"})

	rec := httptest.NewRecorder()
	req := formRequest(http.MethodPost, "/", url.Values{"name": {""}, "email": {"jane@"}})
	if err := h.Edit(withID(e.NewContext(req, rec), "1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "This field is required.") || !strings.Contains(body, "Invalid email address.") {
		t.Errorf("expected field errors, got:\n%s", body)
	}
	if strings.Contains(body, "Patient details have been updated.") {
		t.Error("invalid form must not flash success")
	}
}

func TestHandler_EditNotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := formRequest(http.MethodPost, "/", url.Values{"name": {"X"}})
	err := h.Edit(withID(e.NewContext(req, httptest.NewRecorder()), "7"))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
