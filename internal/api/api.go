// Package api exposes the storefront services over HTTP with echo.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"tea-storefront/internal/auth"
	"tea-storefront/internal/entity"
)

type ProductService interface {
	GetProducts(ctx context.Context) ([]entity.Product, error)
	GetProduct(ctx context.Context, id string) (*entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, id string, product *entity.Product) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type CartService interface {
	Add(ctx context.Context, sessionID string, req entity.CartItemRequest) (entity.CartLineItem, error)
	List(ctx context.Context, sessionID string) ([]entity.CartLineItem, error)
	Merge(ctx context.Context, sessionID string, items []entity.CartItemRequest) ([]entity.CartLineItem, error)
	Delete(ctx context.Context, sessionID, serverID string) error
	Clear(ctx context.Context, sessionID string) error
}

type OrderService interface {
	Checkout(ctx context.Context, sessionID, idempotentKey string) (*entity.Order, error)
	GetOrder(ctx context.Context, sessionID string, id int64) (*entity.Order, error)
	CancelOrder(ctx context.Context, sessionID string, id int64) (*entity.Order, error)
}

type Handlers struct {
	Session *SessionHandler
	Product *ProductHandler
	Cart    *CartHandler
	Order   *OrderHandler
}

// Register mounts every route on e. Catalog reads and session creation are
// public; everything else needs a session token, and catalog writes an admin one.
func Register(e *echo.Echo, h Handlers, issuer *auth.Issuer) {
	e.POST("/session", h.Session.CreateSession)
	e.GET("/products/list", h.Product.GetProducts)
	e.GET("/products/:id", h.Product.GetProduct)

	private := e.Group("", issuer.Middleware())

	admin := private.Group("/admin", auth.RequireAdmin)
	admin.POST("/products", h.Product.CreateProduct)
	admin.PUT("/products/:id", h.Product.UpdateProduct)
	admin.DELETE("/products/:id", h.Product.DeleteProduct)

	private.POST("/cart/add", h.Cart.Add)
	private.GET("/cart/list", h.Cart.List)
	private.POST("/cart/merge", h.Cart.Merge)
	private.DELETE("/cart/:serverId", h.Cart.Delete)
	private.DELETE("/cart", h.Cart.Clear)

	private.POST("/orders/checkout", h.Order.Checkout)
	private.GET("/orders/:id", h.Order.GetOrder)
	private.DELETE("/orders/:id", h.Order.CancelOrder)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "tea-storefront",
			"time":    time.Now().Format(time.RFC3339),
		})
	})
}

// SessionHandler hands out session tokens --> /session
type SessionHandler struct {
	issuer   *auth.Issuer
	adminKey string
}

func NewSessionHandler(issuer *auth.Issuer, adminKey string) *SessionHandler {
	return &SessionHandler{issuer: issuer, adminKey: adminKey}
}

func (h *SessionHandler) CreateSession(c echo.Context) error {
	req := struct {
		AdminKey string `json:"adminKey"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	admin := false
	if req.AdminKey != "" {
		if h.adminKey == "" || req.AdminKey != h.adminKey {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin key", "code": entity.CodeUnauthorized})
		}
		admin = true
	}

	token, sessionID, err := h.issuer.Issue(admin)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"token": token, "sessionId": sessionID, "admin": admin})
}
