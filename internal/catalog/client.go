// Package catalog reads and writes the remote product service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/rs/zerolog"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/remote"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "catalog").Logger()

type Client struct {
	api *remote.Client
}

func NewClient(api *remote.Client) *Client {
	return &Client{api: api}
}

// FetchProducts performs a one-shot read of the full product list. Records
// that fail validation are dropped; a body that is not a list is an error.
func (c *Client) FetchProducts(ctx context.Context) ([]entity.Product, error) {
	raw, err := c.api.DoRaw(ctx, remote.Request{Method: http.MethodGet, Path: "/products/list", Public: true})
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}

	products, rejected, err := entity.DecodeProducts(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w: %v", entity.ErrRemoteUnavailable, err)
	}
	if rejected > 0 {
		logger.Warn().Int("rejected", rejected).Msg("Dropped invalid products from product list")
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (entity.Product, error) {
	raw, err := c.api.DoRaw(ctx, remote.Request{Method: http.MethodGet, Path: "/products/" + url.PathEscape(id), Public: true})
	if err != nil {
		return entity.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return entity.DecodeProduct(raw)
}

func (c *Client) CreateProduct(ctx context.Context, p entity.Product) (entity.Product, error) {
	body := p
	body.ID = ""
	raw, err := c.api.DoRaw(ctx, remote.Request{Method: http.MethodPost, Path: "/admin/products", Body: body})
	if err != nil {
		return entity.Product{}, fmt.Errorf("create product %q: %w", p.Name, err)
	}
	return entity.DecodeProduct(raw)
}

func (c *Client) UpdateProduct(ctx context.Context, p entity.Product) (entity.Product, error) {
	raw, err := c.api.DoRaw(ctx, remote.Request{Method: http.MethodPut, Path: "/admin/products/" + url.PathEscape(p.ID), Body: p})
	if err != nil {
		return entity.Product{}, fmt.Errorf("update product %s: %w", p.ID, err)
	}
	return entity.DecodeProduct(raw)
}

// DeleteProduct deletes id on the server. An id the server does not know is
// treated as already deleted.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	err := c.api.Do(ctx, remote.Request{Method: http.MethodDelete, Path: "/admin/products/" + url.PathEscape(id)}, nil)
	if errors.Is(err, entity.ErrProductNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}
