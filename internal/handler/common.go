package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-registration-ledger/internal/middleware"
	"github.com/iliyamo/event-registration-ledger/internal/repository"
	"github.com/iliyamo/event-registration-ledger/internal/scope"
	"github.com/iliyamo/event-registration-ledger/internal/service"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the owner ID stored by the JWT middleware.
func getUserID(c echo.Context) (string, error) {
	if id := middleware.UserID(c); id != "" {
		return id, nil
	}
	return "", errNoUser
}

// writeError translates ledger errors into HTTP responses.  Anything not
// recognised is logged and reported as a 500 without detail.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var dup *repository.DuplicateError
	switch {
	case errors.As(err, &dup):
		body := echo.Map{"error": "duplicate registration"}
		if dup.ExistingID != "" {
			body["existing_reference_id"] = dup.ExistingID
		}
		return c.JSON(http.StatusConflict, body)
	case errors.Is(err, scope.ErrAmbiguousScope):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "occurrence_start is required for a recurring event"})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrStoreUnavailable), errors.Is(err, service.ErrCatalogUnavailable):
		log.Warn("dependency unavailable", zap.String("route", c.Path()), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"})
	}
	log.Error("unhandled error", zap.String("route", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
