package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"tea-storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var statusByError = []struct {
	err    error
	status int
}{
	{entity.ErrInvalidQuantity, http.StatusBadRequest},
	{entity.ErrEmptyCart, http.StatusBadRequest},
	{entity.ErrQuantityOutOfBounds, http.StatusUnprocessableEntity},
	{entity.ErrQuantityStepViolation, http.StatusUnprocessableEntity},
	{entity.ErrInvalidProduct, http.StatusUnprocessableEntity},
	{entity.ErrProductNotFound, http.StatusNotFound},
	{entity.ErrCartLineNotFound, http.StatusNotFound},
	{entity.ErrOrderNotFound, http.StatusNotFound},
	{entity.ErrOutOfStock, http.StatusConflict},
	{entity.ErrIdempotentKeyExists, http.StatusConflict},
	{entity.ErrUnauthorized, http.StatusUnauthorized},
	{entity.ErrRemoteUnavailable, http.StatusServiceUnavailable},
}

// writeError maps err to a status and a machine readable code. Unknown errors
// are logged and reported as 500 without their message.
func writeError(c echo.Context, err error) error {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, map[string]string{"error": err.Error(), "code": entity.CodeForError(err)})
		}
	}

	logger.Error().Err(err).Msgf("%s %s failed", c.Request().Method, c.Path())
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error", "code": entity.CodeInternal})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg, "code": entity.CodeInvalidRequest})
}
