// Package pricing is the single place where unit prices, line totals and
// quantity rules are computed. Both the API server and the client-side cart
// use it, so an optimistic client total and the authoritative server total
// always come from the same rules.
package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"tea-storefront/internal/entity"
)

// StepEpsilon is the tolerance used when checking that a quantity is a multiple of kgStep.
const StepEpsilon = 1e-8

// UnitPrice returns the per-unit price of p when quantity of unit is requested.
// For kg the highest price tier whose threshold does not exceed the requested
// weight applies; when no tier qualifies the lowest tier is used.
func UnitPrice(p entity.Product, unit entity.Unit, quantity float64) float64 {
	if unit == entity.UnitKg {
		if tier, ok := selectTier(p.PriceTiers, quantity*1000); ok {
			return tier.PricePerKg
		}
		if p.BasePricePerKg > 0 {
			return p.BasePricePerKg
		}
		return p.Price
	}

	// piece products may carry their price in either field
	if p.Price <= 0 && p.Unit == entity.UnitPiece && p.BasePricePerKg > 0 {
		return p.BasePricePerKg
	}
	return p.Price
}

func selectTier(tiers []entity.PriceTier, grams float64) (entity.PriceTier, bool) {
	if len(tiers) == 0 {
		return entity.PriceTier{}, false
	}

	best, lowest := -1, 0
	for i, tier := range tiers {
		if tier.MinTotalWeight < tiers[lowest].MinTotalWeight {
			lowest = i
		}
		if tier.MinTotalWeight <= grams && (best < 0 || tier.MinTotalWeight > tiers[best].MinTotalWeight) {
			best = i
		}
	}
	if best < 0 {
		return tiers[lowest], true
	}
	return tiers[best], true
}

// LineTotal returns unitPrice * quantity rounded half away from zero to 2 decimal places.
func LineTotal(unitPrice, quantity float64) (float64, error) {
	if !PositiveQuantity(quantity) {
		return 0, fmt.Errorf("%w: %v", entity.ErrInvalidQuantity, quantity)
	}
	if math.IsNaN(unitPrice) || math.IsInf(unitPrice, 0) {
		return 0, fmt.Errorf("%w: unit price %v is not a number", entity.ErrInvalidProduct, unitPrice)
	}
	total := decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromFloat(quantity)).Round(2)
	return total.InexactFloat64(), nil
}

// Quote computes both the unit price and the line total for a request.
func Quote(p entity.Product, unit entity.Unit, quantity float64) (unitPrice, total float64, err error) {
	unitPrice = UnitPrice(p, unit, quantity)
	total, err = LineTotal(unitPrice, quantity)
	if err != nil {
		return 0, 0, err
	}
	return unitPrice, total, nil
}

// Round2 rounds v half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ValidateQuantity enforces the product's quantity rules for a requested amount.
// Bounds and step apply to kg lines; piece lines must be whole numbers.
func ValidateQuantity(p entity.Product, unit entity.Unit, quantity float64) error {
	if !PositiveQuantity(quantity) {
		return fmt.Errorf("%w: %v", entity.ErrInvalidQuantity, quantity)
	}

	if unit != entity.UnitKg {
		if !isMultiple(quantity, 1) {
			return fmt.Errorf("%w: %v pieces is not a whole number", entity.ErrQuantityStepViolation, quantity)
		}
		return nil
	}

	if p.MinQuantity > 0 && quantity < p.MinQuantity-StepEpsilon {
		return fmt.Errorf("%w: %v kg is below the minimum of %v kg", entity.ErrQuantityOutOfBounds, quantity, p.MinQuantity)
	}
	if p.MaxQuantity > 0 && quantity > p.MaxQuantity+StepEpsilon {
		return fmt.Errorf("%w: %v kg is above the maximum of %v kg", entity.ErrQuantityOutOfBounds, quantity, p.MaxQuantity)
	}
	if p.KgStep > 0 && !isMultiple(quantity, p.KgStep) {
		return fmt.Errorf("%w: %v kg is not a multiple of %v kg", entity.ErrQuantityStepViolation, quantity, p.KgStep)
	}
	return nil
}

// NormalizeQuantity clamps quantity into the product bounds and snaps it to the
// nearest kgStep multiple. It is used when merging carts, where quantities are
// coerced instead of rejected. quantity must already be a valid positive amount.
func NormalizeQuantity(p entity.Product, unit entity.Unit, quantity float64) float64 {
	if unit != entity.UnitKg {
		return math.Max(1, math.Round(quantity))
	}

	q := clamp(quantity, p.MinQuantity, p.MaxQuantity)
	if p.KgStep > 0 {
		n := math.Max(1, math.Round(q/p.KgStep))
		q = n * p.KgStep
		if p.MaxQuantity > 0 && q > p.MaxQuantity+StepEpsilon {
			q = math.Max(1, math.Floor(p.MaxQuantity/p.KgStep+StepEpsilon)) * p.KgStep
		}
		if p.MinQuantity > 0 && q < p.MinQuantity-StepEpsilon {
			q = math.Ceil(p.MinQuantity/p.KgStep-StepEpsilon) * p.KgStep
		}
	}
	return decimal.NewFromFloat(q).Round(8).InexactFloat64()
}

// SumQuantity adds two quantities without accumulating float error.
func SumQuantity(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(8).InexactFloat64()
}

func clamp(q, min, max float64) float64 {
	if min > 0 && q < min {
		q = min
	}
	if max > 0 && q > max {
		q = max
	}
	return q
}

func isMultiple(quantity, step float64) bool {
	r := quantity / step
	return math.Abs(r-math.Round(r)) <= StepEpsilon
}

// PositiveQuantity reports whether q is a finite amount greater than zero.
func PositiveQuantity(q float64) bool {
	return !math.IsNaN(q) && !math.IsInf(q, 0) && q > 0
}
