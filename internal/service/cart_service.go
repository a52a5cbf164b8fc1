package service

import (
	"context"
	"errors"
	"fmt"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/pricing"
)

type CartService struct {
	products ProductLookup
	lines    CartLineStore
}

func NewCartService(products ProductLookup, lines CartLineStore) *CartService {
	return &CartService{products: products, lines: lines}
}

// Add adds the requested quantity to the session's line for (product, unit).
// Both the requested amount and the resulting line quantity must satisfy the
// product's quantity rules.
func (s *CartService) Add(ctx context.Context, sessionID string, req entity.CartItemRequest) (entity.CartLineItem, error) {
	product, err := s.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		return entity.CartLineItem{}, err
	}
	if !product.InStock {
		return entity.CartLineItem{}, fmt.Errorf("product %s: %w", product.ID, entity.ErrOutOfStock)
	}
	unit := req.Unit
	if unit == "" {
		unit = product.Unit
	}
	if !unit.Valid() {
		return entity.CartLineItem{}, fmt.Errorf("%w: unknown unit %q", entity.ErrInvalidQuantity, unit)
	}
	if err := pricing.ValidateQuantity(*product, unit, req.Quantity); err != nil {
		return entity.CartLineItem{}, err
	}

	lines, err := s.lines.GetLines(ctx, sessionID)
	if err != nil {
		return entity.CartLineItem{}, err
	}
	quantity := req.Quantity
	key := entity.LineKey{ProductID: product.ID, Unit: unit}
	for _, line := range lines {
		if line.Key() == key {
			quantity = pricing.SumQuantity(line.Quantity, req.Quantity)
			break
		}
	}
	if err := pricing.ValidateQuantity(*product, unit, quantity); err != nil {
		return entity.CartLineItem{}, err
	}

	unitPrice, total, err := pricing.Quote(*product, unit, quantity)
	if err != nil {
		return entity.CartLineItem{}, err
	}
	return s.lines.SaveLine(ctx, sessionID, entity.CartLineItem{
		ProductID:        product.ID,
		Quantity:         quantity,
		Unit:             unit,
		UnitPriceAtTime:  unitPrice,
		TotalPriceAtTime: total,
	})
}

func (s *CartService) List(ctx context.Context, sessionID string) ([]entity.CartLineItem, error) {
	return s.lines.GetLines(ctx, sessionID)
}

// Merge folds items into the session cart. Quantities for the same
// (product, unit) are summed with the existing line, then clamped into bounds
// and snapped to the step. Items for unknown products or with unusable
// quantities are dropped. Lines no item refers to are left as they are and
// keep their server ids.
func (s *CartService) Merge(ctx context.Context, sessionID string, items []entity.CartItemRequest) ([]entity.CartLineItem, error) {
	existing, err := s.lines.GetLines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	current := make(map[entity.LineKey]float64, len(existing))
	for _, line := range existing {
		current[line.Key()] = line.Quantity
	}

	var order []entity.LineKey
	sums := make(map[entity.LineKey]float64)
	for _, item := range items {
		if !item.Unit.Valid() || !pricing.PositiveQuantity(item.Quantity) {
			logger.Warn().Msgf("Dropping merge item for product %s: quantity %v %s", item.ProductID, item.Quantity, item.Unit)
			continue
		}
		key := entity.LineKey{ProductID: item.ProductID, Unit: item.Unit}
		if _, ok := sums[key]; !ok {
			order = append(order, key)
			sums[key] = current[key]
		}
		sums[key] = pricing.SumQuantity(sums[key], item.Quantity)
	}

	merged := make([]entity.CartLineItem, 0, len(order))
	for _, key := range order {
		product, err := s.products.GetProduct(ctx, key.ProductID)
		if errors.Is(err, entity.ErrProductNotFound) {
			logger.Warn().Msgf("Dropping merge line for unknown product %s", key.ProductID)
			continue
		}
		if err != nil {
			return nil, err
		}

		quantity := pricing.NormalizeQuantity(*product, key.Unit, sums[key])
		unitPrice, total, err := pricing.Quote(*product, key.Unit, quantity)
		if err != nil {
			return nil, err
		}
		merged = append(merged, entity.CartLineItem{
			ProductID:        key.ProductID,
			Quantity:         quantity,
			Unit:             key.Unit,
			UnitPriceAtTime:  unitPrice,
			TotalPriceAtTime: total,
		})
	}

	if err := s.lines.SaveLines(ctx, sessionID, merged); err != nil {
		return nil, err
	}
	return s.lines.GetLines(ctx, sessionID)
}

func (s *CartService) Delete(ctx context.Context, sessionID, serverID string) error {
	return s.lines.DeleteLine(ctx, sessionID, serverID)
}

func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	return s.lines.ClearLines(ctx, sessionID)
}
