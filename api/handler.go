package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("api")

type Handler struct {
	service *Service
}

func NewHandler(service *Service) Handler {
	return Handler{service}
}

func (h Handler) GetStats(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetStats")
	defer span.End()

	stats, err := h.service.GetStats(ctx)
	if err != nil {
		span.RecordError(err)
		return c.String(http.StatusInternalServerError, "Internal server error: "+err.Error())
	}

	return c.JSON(http.StatusOK, stats)
}

func (h Handler) ResolvePerson(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ResolvePerson")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return c.String(http.StatusBadRequest, "Invalid id")
	}
	requester := c.QueryParam("as")
	if requester == "" {
		return c.String(http.StatusBadRequest, "missing as parameter")
	}

	person, err := h.service.ResolvePerson(ctx, id, requester)
	if err != nil {
		span.RecordError(err)
		return c.String(http.StatusNotFound, "person not found")
	}

	return c.JSON(http.StatusOK, person.GetData())
}

// GetStatus is the moderation view: soft-deleted statuses stay visible here.
func (h Handler) GetStatus(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetStatus")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return c.String(http.StatusBadRequest, "Invalid id")
	}

	status, err := h.service.GetStatus(ctx, id)
	if err != nil {
		span.RecordError(err)
		return c.String(http.StatusNotFound, "status not found")
	}

	return c.JSON(http.StatusOK, status)
}

// LookupStatus is the moderation view keyed by federation URI.
func (h Handler) LookupStatus(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "LookupStatus")
	defer span.End()

	uri := c.QueryParam("uri")
	if uri == "" {
		return c.String(http.StatusBadRequest, "missing uri parameter")
	}

	status, err := h.service.GetStatusByURI(ctx, uri)
	if err != nil {
		span.RecordError(err)
		return c.String(http.StatusNotFound, "status not found")
	}

	return c.JSON(http.StatusOK, status)
}
