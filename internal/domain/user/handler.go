package user

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/thmr/registry/internal/platform/auth"
	"github.com/thmr/registry/internal/platform/web"
)

type Handler struct {
	svc      *Service
	sessions *auth.Sessions
}

func NewHandler(svc *Service, sessions *auth.Sessions) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/login", h.LoginForm)
	g.POST("/login", h.Login)
	g.GET("/logout", h.Logout)

	g.GET("/index", h.Index, auth.RequireLogin)
	g.GET("/", h.Index, auth.RequireLogin)
}

type loginForm struct {
	Username   string
	Password   string
	RememberMe bool
}

func (f *loginForm) validate() map[string]string {
	errs := map[string]string{}
	if f.Username == "" {
		errs["username"] = "This field is required."
	}
	if f.Password == "" {
		errs["password"] = "This field is required."
	}
	return errs
}

func (h *Handler) LoginForm(c echo.Context) error {
	if auth.IsAuthenticated(c.Request().Context()) {
		return c.Redirect(http.StatusFound, "/index")
	}
	return h.renderLogin(c, &loginForm{}, nil)
}

func (h *Handler) Login(c echo.Context) error {
	if auth.IsAuthenticated(c.Request().Context()) {
		return c.Redirect(http.StatusFound, "/index")
	}

	form := &loginForm{
		Username:   strings.TrimSpace(c.FormValue("username")),
		Password:   c.FormValue("password"),
		RememberMe: c.FormValue("remember_me") != "",
	}
	if errs := form.validate(); len(errs) > 0 {
		return h.renderLogin(c, form, errs)
	}

	u, err := h.svc.Authenticate(c.Request().Context(), form.Username, form.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		web.AddFlash(c, "Invalid username or password")
		return c.Redirect(http.StatusFound, "/login")
	}
	if err != nil {
		return err
	}

	if err := h.sessions.Login(c, u.ID, u.Email, form.RememberMe); err != nil {
		return err
	}
	web.AddFlash(c, "Login successful for "+form.Username)
	return c.Redirect(http.StatusFound, auth.SafeNext(c.QueryParam("next"), "/index"))
}

func (h *Handler) renderLogin(c echo.Context, form *loginForm, errs map[string]string) error {
	page := web.NewPage(c, "Sign In")
	page.Form = form
	if errs != nil {
		page.Errors = errs
	}
	if next := c.QueryParam("next"); next != "" {
		page.Data = next
	}
	return page.Render(c, http.StatusOK, "login.html")
}

func (h *Handler) Logout(c echo.Context) error {
	h.sessions.Logout(c)
	web.AddFlash(c, "Logout successful.")
	return c.Redirect(http.StatusFound, "/index")
}

func (h *Handler) Index(c echo.Context) error {
	return web.NewPage(c, "Index").Render(c, http.StatusOK, "index.html")
}
