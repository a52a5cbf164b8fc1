package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// flexFloat accepts a JSON number, a finite numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexID accepts a string or numeric identifier.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*id = flexID(n.String())
	return nil
}

type rawTier struct {
	MinTotalWeight flexFloat `json:"minTotalWeight"`
	PricePerKg     flexFloat `json:"pricePerKg"`
}

type rawProduct struct {
	ID             flexID    `json:"id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Description    string    `json:"description"`
	Price          flexFloat `json:"price"`
	BasePricePerKg flexFloat `json:"basePricePerKg"`
	Unit           string    `json:"unit"`
	KgStep         flexFloat `json:"kgStep"`
	MinQuantity    flexFloat `json:"minQuantity"`
	MaxQuantity    flexFloat `json:"maxQuantity"`
	PriceTiers     []rawTier `json:"priceTiers"`
	InStock        *bool     `json:"inStock"`
}

func (r rawProduct) product() Product {
	p := Product{
		ID:             string(r.ID),
		Name:           strings.TrimSpace(r.Name),
		Category:       r.Category,
		Description:    r.Description,
		Price:          float64(r.Price),
		BasePricePerKg: float64(r.BasePricePerKg),
		Unit:           Unit(strings.ToLower(strings.TrimSpace(r.Unit))),
		KgStep:         float64(r.KgStep),
		MinQuantity:    float64(r.MinQuantity),
		MaxQuantity:    float64(r.MaxQuantity),
		InStock:        true,
	}
	if !p.Unit.Valid() {
		p.Unit = UnitPiece
	}
	if r.InStock != nil {
		p.InStock = *r.InStock
	}
	for _, t := range r.PriceTiers {
		p.PriceTiers = append(p.PriceTiers, PriceTier{
			MinTotalWeight: float64(t.MinTotalWeight),
			PricePerKg:     float64(t.PricePerKg),
		})
	}
	p.SortTiers()
	return p
}

// DecodeProducts converts a loosely typed JSON product list into typed products.
// Individual records that cannot be decoded, lack an id or violate product
// invariants are skipped and counted in rejected. An error is returned only
// when data is not a JSON array.
func DecodeProducts(data []byte) (products []Product, rejected int, err error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, 0, fmt.Errorf("decode product list: %w", err)
	}

	products = make([]Product, 0, len(raws))
	for _, raw := range raws {
		p, err := DecodeProduct(raw)
		if err != nil {
			rejected++
			continue
		}
		products = append(products, p)
	}
	return products, rejected, nil
}

// DecodeProduct decodes and validates a single product record.
func DecodeProduct(data []byte) (Product, error) {
	var r rawProduct
	if err := json.Unmarshal(data, &r); err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	p := r.product()
	if p.ID == "" {
		return Product{}, fmt.Errorf("%w: id is required", ErrInvalidProduct)
	}
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}
