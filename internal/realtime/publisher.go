// Package realtime carries product snapshots and order events over kafka.
// The server publishes; storefront clients subscribe to the product topic as
// their realtime feed.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"tea-storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "realtime").Logger()

// SnapshotKey is the message key of a full product list.
const SnapshotKey = "products-snapshot"

const (
	OrderCreated   = "created"
	OrderCancelled = "cancelled"
)

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	products Writer
	orders   Writer
}

func NewPublisher(products, orders Writer) *Publisher {
	return &Publisher{products: products, orders: orders}
}

// PublishProducts sends the full product list as one snapshot.
func (p *Publisher) PublishProducts(ctx context.Context, products []entity.Product) error {
	if products == nil {
		products = []entity.Product{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return p.products.WriteMessages(ctx, kafka.Message{
		Key:   []byte(SnapshotKey),
		Value: data,
	})
}

// PublishOrderEvent sends order keyed as order-<kind>-<id>.
func (p *Publisher) PublishOrderEvent(ctx context.Context, kind string, order *entity.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.orders.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%s-%d", kind, order.ID)),
		Value: data,
	})
}
