// Package cartsync talks to the authoritative cart service on behalf of a
// session. Prices returned by the server always win over local quotes.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"

	"github.com/rs/zerolog"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/pricing"
	"tea-storefront/internal/remote"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "cartsync").Logger()

type Client struct {
	api *remote.Client
}

func NewClient(api *remote.Client) *Client {
	return &Client{api: api}
}

// AddRemote adds quantity of productID to the server cart and returns the
// server's view of the resulting line.
func (c *Client) AddRemote(ctx context.Context, productID string, quantity float64, unit entity.Unit) (entity.CartLineItem, error) {
	var line entity.CartLineItem
	err := c.api.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/cart/add",
		Body:   entity.CartItemRequest{ProductID: productID, Quantity: quantity, Unit: unit},
	}, &line)
	if err != nil {
		return entity.CartLineItem{}, fmt.Errorf("add product %s to server cart: %w", productID, err)
	}
	if !validLine(line) {
		return entity.CartLineItem{}, fmt.Errorf("add product %s: %w: invalid line in response", productID, entity.ErrRemoteUnavailable)
	}
	return line, nil
}

func (c *Client) ListRemote(ctx context.Context) ([]entity.CartLineItem, error) {
	var lines []entity.CartLineItem
	if err := c.api.Do(ctx, remote.Request{Method: http.MethodGet, Path: "/cart/list"}, &lines); err != nil {
		return nil, fmt.Errorf("list server cart: %w", err)
	}
	return sanitize(lines), nil
}

// MergeRemote submits every local line that has no server id yet, plus the
// pending increase of confirmed lines, and returns the complete merged server
// cart. The server sums submitted quantities into existing lines.
func (c *Client) MergeRemote(ctx context.Context, local []entity.CartLineItem) ([]entity.CartLineItem, error) {
	req := entity.MergeRequest{Items: []entity.CartItemRequest{}}
	for _, line := range local {
		quantity := line.Unsynced()
		if quantity <= pricing.StepEpsilon {
			continue
		}
		req.Items = append(req.Items, entity.CartItemRequest{
			ProductID: line.ProductID,
			Quantity:  quantity,
			Unit:      line.Unit,
		})
	}

	var merged []entity.CartLineItem
	if err := c.api.Do(ctx, remote.Request{Method: http.MethodPost, Path: "/cart/merge", Body: req}, &merged); err != nil {
		return nil, fmt.Errorf("merge %d lines into server cart: %w", len(req.Items), err)
	}
	logger.Info().Msgf("Merged %d local lines, server cart has %d lines", len(req.Items), len(merged))
	return sanitize(merged), nil
}

// DeleteRemote deletes a server line. A line the server no longer knows is
// treated as already deleted.
func (c *Client) DeleteRemote(ctx context.Context, serverID string) error {
	err := c.api.Do(ctx, remote.Request{Method: http.MethodDelete, Path: "/cart/" + url.PathEscape(serverID)}, nil)
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete server line %s: %w", serverID, err)
	}
	return nil
}

// Checkout turns the server cart into an order.
func (c *Client) Checkout(ctx context.Context, idempotentKey string) (*entity.Order, error) {
	var order entity.Order
	err := c.api.Do(ctx, remote.Request{
		Method:  http.MethodPost,
		Path:    "/orders/checkout",
		Headers: map[string]string{"Idempotent-Key": idempotentKey},
	}, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func sanitize(lines []entity.CartLineItem) []entity.CartLineItem {
	out := make([]entity.CartLineItem, 0, len(lines))
	for _, line := range lines {
		if !validLine(line) {
			logger.Warn().Msgf("Dropping invalid server line %q for product %q", line.ServerID, line.ProductID)
			continue
		}
		out = append(out, line)
	}
	return out
}

func validLine(line entity.CartLineItem) bool {
	return line.ServerID != "" && line.ProductID != "" && line.Unit.Valid() &&
		line.Quantity > 0 && !math.IsInf(line.Quantity, 0)
}
