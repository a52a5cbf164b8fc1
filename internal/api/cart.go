package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tea-storefront/internal/auth"
	"tea-storefront/internal/entity"
)

type CartHandler struct {
	cartService CartService
}

func NewCartHandler(cartService CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// Add --> POST /cart/add
func (h *CartHandler) Add(c echo.Context) error {
	session, err := auth.SessionID(c)
	if err != nil {
		return writeError(c, entity.ErrUnauthorized)
	}
	req := entity.CartItemRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	line, err := h.cartService.Add(c.Request().Context(), session, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, line)
}

// List --> GET /cart/list
func (h *CartHandler) List(c echo.Context) error {
	session, err := auth.SessionID(c)
	if err != nil {
		return writeError(c, entity.ErrUnauthorized)
	}

	lines, err := h.cartService.List(c.Request().Context(), session)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, lines)
}

// Merge --> POST /cart/merge
func (h *CartHandler) Merge(c echo.Context) error {
	session, err := auth.SessionID(c)
	if err != nil {
		return writeError(c, entity.ErrUnauthorized)
	}
	req := entity.MergeRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	lines, err := h.cartService.Merge(c.Request().Context(), session, req.Items)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, lines)
}

// Delete --> DELETE /cart/:serverId
func (h *CartHandler) Delete(c echo.Context) error {
	session, err := auth.SessionID(c)
	if err != nil {
		return writeError(c, entity.ErrUnauthorized)
	}

	if err := h.cartService.Delete(c.Request().Context(), session, c.Param("serverId")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Clear --> DELETE /cart
func (h *CartHandler) Clear(c echo.Context) error {
	session, err := auth.SessionID(c)
	if err != nil {
		return writeError(c, entity.ErrUnauthorized)
	}

	if err := h.cartService.Clear(c.Request().Context(), session); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
