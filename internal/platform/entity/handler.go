package entity

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler serves the generic JSON API over every registered entity.
type Handler struct {
	store    Store
	registry *Registry
	filter   TextFilter
	logger   zerolog.Logger
}

func NewHandler(store Store, registry *Registry, filter TextFilter, logger zerolog.Logger) *Handler {
	return &Handler{store: store, registry: registry, filter: filter, logger: logger}
}

// RegisterRoutes mounts the API on g, normally the /thmr/data group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/:entity", h.List)
	g.GET("/:entity/:id", h.Get)
	g.POST("/:entity", h.Create)
	g.PUT("/:entity/:id", h.Update)
}

// List answers an id-keyed object, or an array when ?flat is present.
func (h *Handler) List(c echo.Context) error {
	dao, err := h.dao(c)
	if err != nil {
		return h.httpError(c, err)
	}
	recs, err := dao.FindAll(c.Request().Context())
	if err != nil {
		return h.httpError(c, err)
	}
	if _, flat := c.QueryParams()["flat"]; flat {
		return c.JSON(http.StatusOK, AllAsList(dao.Entity(), recs))
	}
	return c.JSON(http.StatusOK, AllAsDict(dao.Entity(), recs))
}

func (h *Handler) Get(c echo.Context) error {
	dao, err := h.dao(c)
	if err != nil {
		return h.httpError(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := dao.FindByID(c.Request().Context(), id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, OneAsDict(dao.Entity(), rec))
}

func (h *Handler) Create(c echo.Context) error {
	dao, err := h.dao(c)
	if err != nil {
		return h.httpError(c, err)
	}
	fields, err := readBody(c)
	if err != nil {
		return h.httpError(c, err)
	}
	rec, err := dao.Create(c.Request().Context(), fields)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, OneAsDict(dao.Entity(), rec))
}

func (h *Handler) Update(c echo.Context) error {
	dao, err := h.dao(c)
	if err != nil {
		return h.httpError(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	fields, err := readBody(c)
	if err != nil {
		return h.httpError(c, err)
	}
	rec, err := dao.Update(c.Request().Context(), id, fields)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, OneAsDict(dao.Entity(), rec))
}

func (h *Handler) dao(c echo.Context) (*Dao, error) {
	return NewDao(h.store, h.registry, c.Param("entity"), h.filter)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// readBody keeps an *echo.HTTPError raised while reading, such as the 413 of
// the body limit, and turns any other read failure into a 400.
func readBody(c echo.Context) (map[string]interface{}, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, &ValidationError{Reason: "failed to read request body"}
	}
	return JSONLoads(raw)
}

func (h *Handler) httpError(c echo.Context, err error) error {
	var verr *ValidationError
	var cerr *ConflictError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, ErrUnknownEntity):
		return echo.NewHTTPError(http.StatusNotFound, "unknown entity "+strconv.Quote(c.Param("entity")))
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.As(err, &cerr):
		return echo.NewHTTPError(http.StatusConflict, cerr.Error())
	}
	h.logger.Error().Err(err).
		Str("entity", c.Param("entity")).
		Str("method", c.Request().Method).
		Msg("entity store failure")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
