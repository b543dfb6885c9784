package web

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// UserKey is the echo context key under which the session middleware leaves
// the logged-in user's email.
const UserKey = "user_email"

// Page is the data every template receives.
type Page struct {
	Title   string
	User    string
	CSRF    string
	Flashes []string
	Errors  map[string]string
	Form    interface{}
	Data    interface{}
}

// NewPage collects the per-request values of the layout: the logged-in user,
// the CSRF token and any pending flash messages.
func NewPage(c echo.Context, title string) *Page {
	p := &Page{Title: title, Errors: map[string]string{}}
	p.User, _ = c.Get(UserKey).(string)
	p.CSRF, _ = c.Get(echomw.DefaultCSRFConfig.ContextKey).(string)
	p.Flashes = Flashes(c)
	return p
}

// Render writes the page with status.
func (p *Page) Render(c echo.Context, status int, name string) error {
	return c.Render(status, name, p)
}

// StaticPage renders a template that needs nothing beyond the layout.
func StaticPage(title, name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return NewPage(c, title).Render(c, http.StatusOK, name)
	}
}
