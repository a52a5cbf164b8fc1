package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/pricing"
)

const (
	OrderCreatedEvent   = "created"
	OrderCancelledEvent = "cancelled"
)

// OrderService turns session carts into orders.
type OrderService struct {
	products      ProductLookup
	lines         CartLineStore
	orderRepo     OrderStore
	rdb           *redis.Client
	events        EventPublisher
	idempotentTTL time.Duration
	now           func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(products ProductLookup, lines CartLineStore, orderRepo OrderStore, rdb *redis.Client, events EventPublisher, idempotentTTL time.Duration) *OrderService {
	if idempotentTTL <= 0 {
		idempotentTTL = 24 * time.Hour
	}
	return &OrderService{
		products:      products,
		lines:         lines,
		orderRepo:     orderRepo,
		rdb:           rdb,
		events:        events,
		idempotentTTL: idempotentTTL,
		now:           time.Now,
	}
}

// Checkout creates an order from the session's cart with prices recomputed
// from the current catalog, then empties the cart. A repeated idempotent key
// is rejected with ErrIdempotentKeyExists.
func (s *OrderService) Checkout(ctx context.Context, sessionID, idempotentKey string) (*entity.Order, error) {
	if idempotentKey == "" {
		idempotentKey = uuid.NewString()
	}
	if err := s.claimIdempotentKey(ctx, idempotentKey); err != nil {
		return nil, err
	}

	order, err := s.checkout(ctx, sessionID, idempotentKey)
	if err != nil {
		s.releaseIdempotentKey(ctx, idempotentKey)
		return nil, err
	}

	if err := s.publishOrderEvent(ctx, order, OrderCreatedEvent); err != nil {
		logger.Error().Err(err).Msgf("Error publishing order %d created event", order.ID)
	}
	logger.Info().Msgf("Order %d created for session %s, total %.2f", order.ID, sessionID, order.Total)
	return order, nil
}

func (s *OrderService) checkout(ctx context.Context, sessionID, idempotentKey string) (*entity.Order, error) {
	lines, err := s.lines.GetLines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, entity.ErrEmptyCart
	}

	order := &entity.Order{
		OrderRef:      uuid.NewString(),
		SessionID:     sessionID,
		Status:        entity.OrderStatusCreated,
		IdempotentKey: idempotentKey,
		CreatedAt:     s.now().UTC().Truncate(time.Second),
	}
	total := decimal.Zero
	for _, line := range lines {
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.InStock {
			return nil, fmt.Errorf("product %s: %w", product.ID, entity.ErrOutOfStock)
		}

		unitPrice, lineTotal, err := pricing.Quote(*product, line.Unit, line.Quantity)
		if err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, entity.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			Unit:      line.Unit,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		})
		total = total.Add(decimal.NewFromFloat(lineTotal))
	}
	order.Total = total.Round(2).InexactFloat64()

	return s.orderRepo.CreateOrder(ctx, order)
}

func (s *OrderService) GetOrder(ctx context.Context, sessionID string, id int64) (*entity.Order, error) {
	return s.orderRepo.GetOrderByID(ctx, sessionID, id)
}

// CancelOrder marks the order cancelled. Cancelling twice is a no-op.
func (s *OrderService) CancelOrder(ctx context.Context, sessionID string, id int64) (*entity.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderStatusCancelled {
		return order, nil
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, sessionID, id, entity.OrderStatusCancelled); err != nil {
		logger.Error().Err(err).Msgf("Error cancelling order %d", id)
		return nil, err
	}
	order.Status = entity.OrderStatusCancelled

	if err := s.publishOrderEvent(ctx, order, OrderCancelledEvent); err != nil {
		logger.Error().Err(err).Msgf("Error publishing order %d cancelled event", id)
	}
	return order, nil
}

func (s *OrderService) publishOrderEvent(ctx context.Context, order *entity.Order, kind string) error {
	if s.events == nil {
		return nil
	}
	return s.events.PublishOrderEvent(ctx, kind, order)
}

func idempotentRedisKey(key string) string {
	return fmt.Sprintf("idempotent-key:%s", key)
}

// claimIdempotentKey atomically reserves key; it fails if the key was used before.
func (s *OrderService) claimIdempotentKey(ctx context.Context, key string) error {
	ok, err := s.rdb.SetNX(ctx, idempotentRedisKey(key), "1", s.idempotentTTL).Result()
	if err != nil {
		return fmt.Errorf("%w: idempotency store: %v", entity.ErrRemoteUnavailable, err)
	}
	if !ok {
		return entity.ErrIdempotentKeyExists
	}
	return nil
}

// releaseIdempotentKey frees key after a failed checkout so the client may retry with it.
func (s *OrderService) releaseIdempotentKey(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, idempotentRedisKey(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		logger.Error().Err(err).Msgf("Error releasing idempotent key %s", key)
	}
}
