package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/stay-reservation/internal/model"
)

// respondError maps a service error to its HTTP status.  Client errors
// carry the error text; anything unrecognised is logged and answered with
// a generic 500.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, model.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrTimeout):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation_busy", "message": "resource is busy, retry shortly"})
	case errors.Is(err, model.ErrInvalidTransition):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "dependency unavailable"})
	}
	c.Logger().Errorj(log.JSON{
		"event":  "request_failed",
		"method": c.Request().Method,
		"path":   c.Path(),
		"error":  err.Error(),
	})
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
