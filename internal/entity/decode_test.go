package entity

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProductsCoercesLooseRecords(t *testing.T) {
	data := []byte(`[
		{"id": 42, "name": " Sencha ", "price": "12.5", "unit": "KG", "kgStep": 0.5,
		 "priceTiers": [{"minTotalWeight": 1000, "pricePerKg": 90}, {"minTotalWeight": 0, "pricePerKg": 100}]},
		{"id": "abc", "name": "Teapot", "price": 30, "unit": "box", "inStock": false}
	]`)

	products, rejected, err := DecodeProducts(data)
	require.NoError(t, err)
	assert.Equal(t, 0, rejected)
	require.Len(t, products, 2)

	assert.Equal(t, "42", products[0].ID)
	assert.Equal(t, "Sencha", products[0].Name)
	assert.Equal(t, 12.5, products[0].Price)
	assert.Equal(t, UnitKg, products[0].Unit)
	assert.True(t, products[0].InStock)
	assert.Equal(t, []PriceTier{{0, 100}, {1000, 90}}, products[0].PriceTiers)

	assert.Equal(t, UnitPiece, products[1].Unit)
	assert.False(t, products[1].InStock)
}

func TestDecodeProductsSkipsInvalidRecords(t *testing.T) {
	data := []byte(`[
		{"id": "1", "name": "ok", "unit": "kg"},
		{"name": "no id"},
		{"id": "3", "name": "bad bounds", "unit": "kg", "minQuantity": 5, "maxQuantity": 1},
		{"id": "4", "name": "bad price", "price": "cheap"},
		"not an object"
	]`)

	products, rejected, err := DecodeProducts(data)
	require.NoError(t, err)
	assert.Equal(t, 4, rejected)
	require.Len(t, products, 1)
	assert.Equal(t, "1", products[0].ID)
}

func TestDecodeProductsRejectsNonFiniteNumbers(t *testing.T) {
	data := []byte(`[
		{"id": "1", "name": "Sencha", "price": "NaN", "unit": "piece"},
		{"id": "2", "name": "Oolong", "price": "Inf", "unit": "piece"},
		{"id": "3", "name": "Pu-erh", "basePricePerKg": "-Infinity", "unit": "kg"},
		{"id": "4", "name": "Matcha", "unit": "kg", "priceTiers": [{"minTotalWeight": 0, "pricePerKg": "nan"}]},
		{"id": "5", "name": "Genmaicha", "price": 12, "unit": "piece"}
	]`)

	products, rejected, err := DecodeProducts(data)
	require.NoError(t, err)
	assert.Equal(t, 4, rejected)
	require.Len(t, products, 1)
	assert.Equal(t, "5", products[0].ID)
}

func TestDecodeProductsRejectsNonArray(t *testing.T) {
	_, _, err := DecodeProducts([]byte(`{"id": "1"}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	p := Product{Name: "Oolong", Unit: UnitKg, MinQuantity: 0.5, MaxQuantity: 5, KgStep: 0.5}
	assert.NoError(t, p.Validate())

	p.Unit = "litre"
	assert.True(t, errors.Is(p.Validate(), ErrInvalidProduct))
}

func TestValidateRejectsBadPrices(t *testing.T) {
	for name, p := range map[string]Product{
		"nan price":      {Name: "Sencha", Unit: UnitPiece, Price: math.NaN()},
		"infinite base":  {Name: "Sencha", Unit: UnitKg, BasePricePerKg: math.Inf(1)},
		"negative price": {Name: "Sencha", Unit: UnitPiece, Price: -1},
		"nan tier":       {Name: "Sencha", Unit: UnitKg, PriceTiers: []PriceTier{{0, math.NaN()}}},
		"nan step":       {Name: "Sencha", Unit: UnitKg, KgStep: math.NaN()},
	} {
		assert.True(t, errors.Is(p.Validate(), ErrInvalidProduct), name)
	}
}

func TestLocalIDs(t *testing.T) {
	id := NewLocalID(time.UnixMilli(1700000000000))
	assert.True(t, strings.HasPrefix(id, "local-1700000000000-"))
	assert.True(t, IsLocalID(id))
	assert.True(t, IsLocalID("tmp-123"))
	assert.False(t, IsLocalID("abc"))
}

func TestErrorCodesRoundTrip(t *testing.T) {
	for _, sentinel := range []error{ErrQuantityOutOfBounds, ErrProductNotFound, ErrUnauthorized} {
		code := CodeForError(sentinel)
		assert.True(t, errors.Is(ErrorForCode(code), sentinel))
	}
	assert.Equal(t, CodeInternal, CodeForError(errors.New("boom")))
	assert.Nil(t, ErrorForCode("nope"))
}
