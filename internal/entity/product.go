package entity

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Unit string

const (
	UnitKg    Unit = "kg"
	UnitPiece Unit = "piece"
)

// Valid reports whether u is one of the known sale units.
func (u Unit) Valid() bool {
	return u == UnitKg || u == UnitPiece
}

// Prefixes of ids assigned to products that exist only locally and have not
// been confirmed by the server yet.
const (
	TmpIDPrefix   = "tmp-"
	LocalIDPrefix = "local-"
)

// PriceTier is a stepped per-kilogram price applying from MinTotalWeight grams upwards.
type PriceTier struct {
	MinTotalWeight float64 `json:"minTotalWeight"`
	PricePerKg     float64 `json:"pricePerKg"`
}

// Product is a catalog entry. Zero values of the optional quantity fields
// (KgStep, MinQuantity, MaxQuantity) mean "not set".
type Product struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Category       string      `json:"category,omitempty"`
	Description    string      `json:"description,omitempty"`
	Price          float64     `json:"price"`
	BasePricePerKg float64     `json:"basePricePerKg,omitempty"`
	Unit           Unit        `json:"unit"`
	KgStep         float64     `json:"kgStep,omitempty"`
	MinQuantity    float64     `json:"minQuantity,omitempty"`
	MaxQuantity    float64     `json:"maxQuantity,omitempty"`
	PriceTiers     []PriceTier `json:"priceTiers,omitempty"`
	InStock        bool        `json:"inStock"`
}

/*
Schema MySQL for products table (primary shard):
CREATE TABLE products (
  id INT AUTO_INCREMENT PRIMARY KEY,
  name VARCHAR(255) NOT NULL,
  category VARCHAR(100) NOT NULL DEFAULT '',
  description TEXT NOT NULL,
  price DOUBLE NOT NULL DEFAULT 0,
  base_price_per_kg DOUBLE NOT NULL DEFAULT 0,
  unit VARCHAR(10) NOT NULL,
  kg_step DOUBLE NOT NULL DEFAULT 0,
  min_quantity DOUBLE NOT NULL DEFAULT 0,
  max_quantity DOUBLE NOT NULL DEFAULT 0,
  price_tiers TEXT NOT NULL,
  in_stock BOOLEAN NOT NULL DEFAULT TRUE
);
*/

// Validate checks the product invariants.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if !p.Unit.Valid() {
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidProduct, p.Unit)
	}
	if !finiteAmount(p.Price) || !finiteAmount(p.BasePricePerKg) {
		return fmt.Errorf("%w: prices must be finite and not negative", ErrInvalidProduct)
	}
	if !finiteAmount(p.KgStep) {
		return fmt.Errorf("%w: kgStep must be positive", ErrInvalidProduct)
	}
	if !finiteAmount(p.MinQuantity) || !finiteAmount(p.MaxQuantity) {
		return fmt.Errorf("%w: quantity bounds must not be negative", ErrInvalidProduct)
	}
	if p.MinQuantity > 0 && p.MaxQuantity > 0 && p.MinQuantity > p.MaxQuantity {
		return fmt.Errorf("%w: minQuantity %.3f exceeds maxQuantity %.3f", ErrInvalidProduct, p.MinQuantity, p.MaxQuantity)
	}
	for _, tier := range p.PriceTiers {
		if !finiteAmount(tier.MinTotalWeight) || !finiteAmount(tier.PricePerKg) {
			return fmt.Errorf("%w: price tiers must be finite and not negative", ErrInvalidProduct)
		}
	}
	return nil
}

func finiteAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// SortTiers orders the price tiers by ascending MinTotalWeight.
func (p *Product) SortTiers() {
	sort.SliceStable(p.PriceTiers, func(i, j int) bool {
		return p.PriceTiers[i].MinTotalWeight < p.PriceTiers[j].MinTotalWeight
	})
}

// IsLocalID reports whether id is a placeholder assigned before the server confirmed the product.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, TmpIDPrefix) || strings.HasPrefix(id, LocalIDPrefix)
}

// NewLocalID returns a placeholder id of the form local-<unixms>-<rand>.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("%s%d-%s", LocalIDPrefix, now.UnixMilli(), uuid.NewString()[:8])
}
