package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"tea-storefront/internal/auth"
	"tea-storefront/internal/entity"
)

type OrderHandler struct {
	orderService OrderService
}

func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// Checkout --> POST /orders/checkout
func (h *OrderHandler) Checkout(c echo.Context) error {
	session, err := auth.SessionID(c)
	if err != nil {
		return writeError(c, entity.ErrUnauthorized)
	}

	order, err := h.orderService.Checkout(c.Request().Context(), session, c.Request().Header.Get("Idempotent-Key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// GetOrder --> GET /orders/:id
func (h *OrderHandler) GetOrder(c echo.Context) error {
	session, err := auth.SessionID(c)
	if err != nil {
		return writeError(c, entity.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid ID")
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), session, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// CancelOrder --> DELETE /orders/:id
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	session, err := auth.SessionID(c)
	if err != nil {
		return writeError(c, entity.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid ID")
	}

	order, err := h.orderService.CancelOrder(c.Request().Context(), session, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}
