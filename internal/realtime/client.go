package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"tea-storefront/internal/entity"
)

var ErrNotConnected = errors.New("realtime client not connected")

// Reader is the subset of *kafka.Reader a subscription consumes.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ReaderFactory opens a fresh reader for each subscription.
type ReaderFactory func() Reader

// Client is the storefront's realtime product feed.
type Client struct {
	newReader ReaderFactory

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(newReader ReaderFactory) *Client {
	return &Client{newReader: newReader}
}

// Connect opens the connection. Subscriptions stay alive until Disconnect,
// their unsubscribe func, or cancellation of ctx.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil && c.ctx.Err() == nil {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	logger.Info().Msg("Realtime feed connected")
	return nil
}

// Disconnect ends every subscription without reporting errors to them.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		logger.Info().Msg("Realtime feed disconnected")
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx != nil && c.ctx.Err() == nil
}

// Subscribe delivers every product snapshot to onChange until unsubscribed.
// A read failure is reported once through onError and ends the subscription.
func (c *Client) Subscribe(onChange func([]entity.Product), onError func(error)) (unsubscribe func()) {
	c.mu.Lock()
	parent := c.ctx
	c.mu.Unlock()

	if parent == nil || parent.Err() != nil {
		go onError(ErrNotConnected)
		return func() {}
	}

	ctx, cancel := context.WithCancel(parent)
	go c.consume(ctx, c.newReader(), onChange, onError)
	return cancel
}

func (c *Client) consume(ctx context.Context, reader Reader, onChange func([]entity.Product), onError func(error)) {
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing kafka reader")
		}
	}()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			onError(fmt.Errorf("%w: %v", entity.ErrRemoteUnavailable, err))
			return
		}
		if string(msg.Key) != SnapshotKey {
			continue
		}

		products, rejected, err := entity.DecodeProducts(msg.Value)
		if err != nil {
			logger.Error().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable product snapshot")
			continue
		}
		if rejected > 0 {
			logger.Warn().Int("rejected", rejected).Msg("Dropped invalid products from snapshot")
		}
		onChange(products)
	}
}
