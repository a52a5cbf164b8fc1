package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tea-storefront/internal/entity"
)

type ProductHandler struct {
	productService ProductService
}

func NewProductHandler(productService ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// GetProducts --> GET /products/list
func (h *ProductHandler) GetProducts(c echo.Context) error {
	products, err := h.productService.GetProducts(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// GetProduct --> GET /products/:id
func (h *ProductHandler) GetProduct(c echo.Context) error {
	product, err := h.productService.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// CreateProduct --> POST /admin/products
func (h *ProductHandler) CreateProduct(c echo.Context) error {
	product := entity.Product{InStock: true}
	if err := c.Bind(&product); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	product.ID = ""

	created, err := h.productService.CreateProduct(c.Request().Context(), &product)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// UpdateProduct --> PUT /admin/products/:id
func (h *ProductHandler) UpdateProduct(c echo.Context) error {
	product := entity.Product{}
	if err := c.Bind(&product); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	updated, err := h.productService.UpdateProduct(c.Request().Context(), c.Param("id"), &product)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteProduct --> DELETE /admin/products/:id
func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	if err := h.productService.DeleteProduct(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
