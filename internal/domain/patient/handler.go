package patient

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/thmr/registry/internal/platform/auth"
	"github.com/thmr/registry/internal/platform/entity"
	"github.com/thmr/registry/internal/platform/web"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patient_search", h.SearchForm, auth.RequireLogin)
	g.POST("/patient_search", h.Search, auth.RequireLogin)
	g.GET("/patient_edit/:id", h.EditForm, auth.RequireLogin)
	g.POST("/patient_edit/:id", h.Edit, auth.RequireLogin)
}

type searchResults struct {
	Patients []*Patient
}

func readForm(c echo.Context) Form {
	return Form{
		Name:    c.FormValue("name"),
		Email:   c.FormValue("email"),
		Gender:  c.FormValue("gender"),
		Phone:   c.FormValue("phone"),
		Address: c.FormValue("address"),
	}
}

func (h *Handler) SearchForm(c echo.Context) error {
	page := web.NewPage(c, "Patient Search")
	page.Form = Form{}
	return page.Render(c, http.StatusOK, "patient_search.html")
}

func (h *Handler) Search(c echo.Context) error {
	form := readForm(c)
	patients, err := h.svc.Search(c.Request().Context(), form)
	if err != nil {
		return err
	}
	page := web.NewPage(c, "Patient Search")
	page.Form = form
	page.Data = searchResults{Patients: patients}
	return page.Render(c, http.StatusOK, "patient_search.html")
}

func (h *Handler) EditForm(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return notFound(err)
	}
	return h.renderEdit(c, id, FormFromPatient(p), nil)
}

func (h *Handler) Edit(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	form := readForm(c)
	p, err := h.svc.Update(c.Request().Context(), id, form)

	var formErrs FormErrors
	if errors.As(err, &formErrs) {
		return h.renderEdit(c, id, form, formErrs)
	}
	if err != nil {
		return notFound(err)
	}

	web.AddFlash(c, "Patient details have been updated.")
	return h.renderEdit(c, id, FormFromPatient(p), nil)
}

func (h *Handler) renderEdit(c echo.Context, id int64, form Form, errs FormErrors) error {
	page := web.NewPage(c, "Patient Details")
	page.Form = form
	page.Data = id
	if errs != nil {
		page.Errors = errs
	}
	return page.Render(c, http.StatusOK, "patient_edit.html")
}

func patientID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.ErrNotFound
	}
	return id, nil
}

func notFound(err error) error {
	if errors.Is(err, entity.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return err
}
