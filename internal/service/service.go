// Package service holds the server-side authority for products, carts and
// orders. Prices are always recomputed here with the pricing package.
package service

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"tea-storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type ProductStore interface {
	GetProducts(ctx context.Context) ([]entity.Product, error)
	GetProductByID(ctx context.Context, id string) (*entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type CartLineStore interface {
	GetLines(ctx context.Context, sessionID string) ([]entity.CartLineItem, error)
	SaveLine(ctx context.Context, sessionID string, line entity.CartLineItem) (entity.CartLineItem, error)
	SaveLines(ctx context.Context, sessionID string, lines []entity.CartLineItem) error
	DeleteLine(ctx context.Context, sessionID, serverID string) error
	ClearLines(ctx context.Context, sessionID string) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	GetOrderByID(ctx context.Context, sessionID string, id int64) (*entity.Order, error)
	UpdateOrderStatus(ctx context.Context, sessionID string, id int64, status string) error
}

// EventPublisher sends product snapshots and order events to the realtime topics.
type EventPublisher interface {
	PublishProducts(ctx context.Context, products []entity.Product) error
	PublishOrderEvent(ctx context.Context, kind string, order *entity.Order) error
}

// ProductLookup resolves a product for pricing.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*entity.Product, error)
}
