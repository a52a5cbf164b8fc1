// Package kvstore is the durable key-value slot used by the client-side core
// to persist the cart, the cached product list and the tombstone ledger.
package kvstore

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "kvstore").Logger()

// Store is a string key-value store with change notification. Watch callbacks
// fire when another writer (another process or peer handle) changes the key;
// writes made through the same Store do not notify its own watchers.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context, key string, fn func()) (cancel func(), err error)
}
