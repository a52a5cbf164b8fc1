// Package cart holds the session's cart: an ordered list of line items keyed
// by (product, unit), persisted to the durable key-value store after every
// mutation and optionally mirrored to the remote cart service.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/kvstore"
	"tea-storefront/internal/pricing"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "cart").Logger()

// DefaultKey is the key-value slot the cart is persisted under.
const DefaultKey = "cart"

// Catalog resolves products for pricing.
type Catalog interface {
	Product(id string) (entity.Product, bool)
}

// Remote is the authoritative cart service.
type Remote interface {
	AddRemote(ctx context.Context, productID string, quantity float64, unit entity.Unit) (entity.CartLineItem, error)
	ListRemote(ctx context.Context) ([]entity.CartLineItem, error)
	MergeRemote(ctx context.Context, lines []entity.CartLineItem) ([]entity.CartLineItem, error)
	DeleteRemote(ctx context.Context, serverID string) error
	Checkout(ctx context.Context, idempotentKey string) (*entity.Order, error)
}

type Store struct {
	mu      sync.Mutex
	lines   []entity.CartLineItem
	kv      kvstore.Store
	key     string
	catalog Catalog
	remote  Remote

	subMu       sync.Mutex
	subscribers map[int]func([]entity.CartLineItem)
	nextSub     int
}

type Option func(*Store)

// WithRemote mirrors mutations to the remote cart service.
func WithRemote(remote Remote) Option {
	return func(s *Store) { s.remote = remote }
}

// WithKey overrides the persistence key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// NewStore creates a cart and loads any persisted state. Undecodable state is
// discarded and the cart starts empty.
func NewStore(ctx context.Context, kv kvstore.Store, catalog Catalog, opts ...Option) *Store {
	s := &Store{
		kv:          kv,
		key:         DefaultKey,
		catalog:     catalog,
		subscribers: make(map[int]func([]entity.CartLineItem)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lines = s.load(ctx)
	return s
}

// Lines returns a copy of the current line items in cart order.
func (s *Store) Lines() []entity.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Add puts quantity of productID into the cart. An existing line for the same
// (product, unit) grows instead of a new line being created. When a remote is
// configured its answer is authoritative; rejections from it leave the cart
// untouched, while an unreachable remote leaves the line optimistic.
func (s *Store) Add(ctx context.Context, productID string, quantity float64, unit entity.Unit) (entity.CartLineItem, error) {
	if !unit.Valid() {
		return entity.CartLineItem{}, fmt.Errorf("%w: unknown unit %q", entity.ErrInvalidQuantity, unit)
	}
	product, ok := s.catalog.Product(productID)
	if !ok {
		return entity.CartLineItem{}, fmt.Errorf("%w: %s", entity.ErrProductNotFound, productID)
	}
	if !product.InStock {
		return entity.CartLineItem{}, fmt.Errorf("%w: %s", entity.ErrOutOfStock, product.Name)
	}
	if err := pricing.ValidateQuantity(product, unit, quantity); err != nil {
		return entity.CartLineItem{}, err
	}
	unitPrice, total, err := pricing.Quote(product, unit, quantity)
	if err != nil {
		return entity.CartLineItem{}, err
	}

	key := entity.LineKey{ProductID: productID, Unit: unit}

	var confirmed *entity.CartLineItem
	if s.remote != nil {
		// optimistic quantity the server has never seen travels with this add
		var unsynced float64
		s.mu.Lock()
		if i := s.indexLocked(key); i >= 0 {
			unsynced = s.lines[i].Unsynced()
		}
		s.mu.Unlock()

		if unsynced < -pricing.StepEpsilon {
			// the server line holds more than the cart, only a merge can settle it
			logger.Info().Msgf("Server line for product %s is ahead of the cart, keeping add local", productID)
		} else {
			line, err := s.remote.AddRemote(ctx, productID, pricing.SumQuantity(quantity, unsynced), unit)
			switch {
			case err == nil:
				confirmed = &line
			case isDegraded(err):
				logger.Warn().Err(err).Msgf("Remote add for product %s failed, keeping line local", productID)
			default:
				return entity.CartLineItem{}, err
			}
		}
	}

	s.mu.Lock()
	i := s.indexLocked(key)
	switch {
	case confirmed != nil && i >= 0:
		s.lines[i] = *confirmed
	case confirmed != nil:
		s.lines = append(s.lines, *confirmed)
		i = len(s.lines) - 1
	case i >= 0:
		s.lines[i].Quantity = roundQuantity(s.lines[i].Quantity + quantity)
		s.lines[i].TotalPriceAtTime = pricing.Round2(s.lines[i].TotalPriceAtTime + total)
		if s.lines[i].ServerID != "" {
			s.lines[i].PendingQuantity = roundQuantity(s.lines[i].PendingQuantity + quantity)
		}
	default:
		s.lines = append(s.lines, entity.CartLineItem{
			ProductID:        productID,
			Quantity:         quantity,
			Unit:             unit,
			UnitPriceAtTime:  unitPrice,
			TotalPriceAtTime: total,
		})
		i = len(s.lines) - 1
	}
	line := s.lines[i]
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()

	s.publish(snapshot)
	return line, nil
}

// UpdateQuantity replaces the quantity of a line. A quantity of zero or less
// removes the line. The line total is re-quoted locally as an advisory value.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity float64, unit entity.Unit) error {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return fmt.Errorf("%w: %v", entity.ErrInvalidQuantity, quantity)
	}
	if quantity <= 0 {
		return s.Remove(ctx, productID, unit)
	}

	s.mu.Lock()
	i := s.indexLocked(entity.LineKey{ProductID: productID, Unit: unit})
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", entity.ErrCartLineNotFound, productID, unit)
	}
	line := &s.lines[i]
	if line.ServerID != "" {
		line.PendingQuantity = roundQuantity(line.PendingQuantity + quantity - line.Quantity)
	}
	line.Quantity = quantity
	if product, ok := s.catalog.Product(productID); ok {
		if unitPrice, total, err := pricing.Quote(product, unit, quantity); err == nil {
			line.UnitPriceAtTime, line.TotalPriceAtTime = unitPrice, total
		}
	} else {
		line.TotalPriceAtTime = 0
	}
	stale := line.ServerID
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(snapshot)

	if s.remote != nil && stale != "" {
		s.resync(ctx, productID, quantity, unit, stale)
	}
	return nil
}

// resync replaces a server line whose quantity changed locally.
func (s *Store) resync(ctx context.Context, productID string, quantity float64, unit entity.Unit, serverID string) {
	if err := s.remote.DeleteRemote(ctx, serverID); err != nil {
		logger.Warn().Err(err).Msgf("Error deleting stale server line %s, change stays pending", serverID)
		return
	}

	line, err := s.remote.AddRemote(ctx, productID, quantity, unit)

	s.mu.Lock()
	i := s.indexLocked(entity.LineKey{ProductID: productID, Unit: unit})
	if i < 0 {
		s.mu.Unlock()
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msgf("Error re-adding product %s, line stays local until the next merge", productID)
		s.lines[i].ServerID = ""
		s.lines[i].PendingQuantity = 0
	} else {
		s.lines[i] = line
	}
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(snapshot)
}

// Remove deletes the (product, unit) line. The matching server line is deleted
// on a best-effort basis; when the local line never got a server id, the
// server cart is searched for a line with the same product, unit and quantity.
func (s *Store) Remove(ctx context.Context, productID string, unit entity.Unit) error {
	s.mu.Lock()
	i := s.indexLocked(entity.LineKey{ProductID: productID, Unit: unit})
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	removed := s.lines[i]
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(snapshot)

	if s.remote == nil {
		return nil
	}

	serverID := removed.ServerID
	if serverID == "" {
		serverID = s.resolveServerID(ctx, removed)
		if serverID == "" {
			return nil
		}
	}
	if err := s.remote.DeleteRemote(ctx, serverID); err != nil {
		logger.Warn().Err(err).Msgf("Error deleting server line %s", serverID)
	}
	return nil
}

func (s *Store) resolveServerID(ctx context.Context, removed entity.CartLineItem) string {
	remoteLines, err := s.remote.ListRemote(ctx)
	if err != nil {
		logger.Warn().Err(err).Msgf("Error listing server cart to resolve product %s", removed.ProductID)
		return ""
	}
	for _, line := range remoteLines {
		if line.Key() == removed.Key() && math.Abs(line.Quantity-removed.Quantity) <= pricing.StepEpsilon {
			return line.ServerID
		}
	}
	return ""
}

// Clear empties the cart and deletes confirmed lines from the server.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	removed := s.lines
	s.lines = nil
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(snapshot)

	if s.remote == nil {
		return nil
	}
	for _, line := range removed {
		if line.ServerID == "" {
			continue
		}
		if err := s.remote.DeleteRemote(ctx, line.ServerID); err != nil {
			logger.Warn().Err(err).Msgf("Error deleting server line %s", line.ServerID)
		}
	}
	return nil
}

// Total sums the line totals. Lines without a captured total are priced
// against the current catalog; lines for unknown products count as zero.
func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := decimal.Zero
	for _, line := range s.lines {
		if line.TotalPriceAtTime > 0 {
			sum = sum.Add(decimal.NewFromFloat(line.TotalPriceAtTime))
			continue
		}
		product, ok := s.catalog.Product(line.ProductID)
		if !ok {
			continue
		}
		_, total, err := pricing.Quote(product, line.Unit, line.Quantity)
		if err != nil {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(total))
	}
	return sum.Round(2).InexactFloat64()
}

// MergeRemote pushes local-only lines and pending quantity changes to the
// server once a session exists and replaces the cart with the merged server
// cart. A server line that holds more than the cart is deleted first so the
// whole local quantity can be submitted in its place.
func (s *Store) MergeRemote(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	if err := s.dropShrunkServerLines(ctx); err != nil {
		return fmt.Errorf("merge cart: %w", err)
	}

	merged, err := s.remote.MergeRemote(ctx, s.Lines())
	if err != nil {
		return fmt.Errorf("merge cart: %w", err)
	}

	s.mu.Lock()
	if err := s.kv.Delete(ctx, s.key); err != nil {
		logger.Warn().Err(err).Msg("Error clearing local cart before merge")
	}
	s.lines = append([]entity.CartLineItem(nil), merged...)
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()

	s.publish(snapshot)
	return nil
}

func (s *Store) dropShrunkServerLines(ctx context.Context) error {
	for _, line := range s.Lines() {
		if line.ServerID == "" || line.PendingQuantity >= -pricing.StepEpsilon {
			continue
		}
		if err := s.remote.DeleteRemote(ctx, line.ServerID); err != nil {
			return err
		}

		s.mu.Lock()
		if i := s.indexLocked(line.Key()); i >= 0 && s.lines[i].ServerID == line.ServerID {
			s.lines[i].ServerID = ""
			s.lines[i].PendingQuantity = 0
		}
		snapshot := s.commitLocked(ctx)
		s.mu.Unlock()
		s.publish(snapshot)
	}
	return nil
}

// Checkout places an order for the server cart. It has no local fallback, so
// remote failures are returned to the caller.
func (s *Store) Checkout(ctx context.Context, idempotentKey string) (*entity.Order, error) {
	if s.remote == nil {
		return nil, fmt.Errorf("checkout: %w", entity.ErrRemoteUnavailable)
	}
	if err := s.MergeRemote(ctx); err != nil {
		return nil, err
	}

	order, err := s.remote.Checkout(ctx, idempotentKey)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	s.mu.Lock()
	s.lines = nil
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()
	s.publish(snapshot)

	return order, nil
}

// Reload re-reads the persisted cart, e.g. after another process changed it.
func (s *Store) Reload(ctx context.Context) {
	lines := s.load(ctx)

	s.mu.Lock()
	s.lines = lines
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
}

// Watch reloads the cart whenever another writer changes its key.
func (s *Store) Watch(ctx context.Context) (func(), error) {
	return s.kv.Watch(ctx, s.key, func() { s.Reload(ctx) })
}

// Subscribe registers fn for cart changes. fn is called once synchronously
// with the current lines before Subscribe returns.
func (s *Store) Subscribe(fn func([]entity.CartLineItem)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	fn(s.Lines())

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) publish(lines []entity.CartLineItem) {
	s.subMu.Lock()
	fns := make([]func([]entity.CartLineItem), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(append([]entity.CartLineItem(nil), lines...))
	}
}

// commitLocked persists the cart synchronously and returns a snapshot for subscribers.
func (s *Store) commitLocked(ctx context.Context) []entity.CartLineItem {
	snapshot := s.snapshotLocked()
	data, err := json.Marshal(snapshot)
	if err != nil {
		logger.Error().Err(err).Msg("Error encoding cart")
		return snapshot
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		logger.Error().Err(err).Msg("Error persisting cart")
	}
	return snapshot
}

func (s *Store) snapshotLocked() []entity.CartLineItem {
	return append([]entity.CartLineItem{}, s.lines...)
}

func (s *Store) indexLocked(key entity.LineKey) int {
	for i, line := range s.lines {
		if line.Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) load(ctx context.Context) []entity.CartLineItem {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		logger.Error().Err(err).Msg("Error reading persisted cart")
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	lines, err := decodeLines(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("Discarding persisted cart")
		return nil
	}
	return lines
}

// decodeLines parses persisted lines, dropping unusable entries and folding
// duplicates of the same key into one line.
func decodeLines(raw string) ([]entity.CartLineItem, error) {
	var stored []entity.CartLineItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrMalformedPersistedState, err)
	}

	lines := make([]entity.CartLineItem, 0, len(stored))
	index := make(map[entity.LineKey]int, len(stored))
	for _, line := range stored {
		if line.ProductID == "" || !line.Unit.Valid() || !(line.Quantity > 0) || math.IsInf(line.Quantity, 0) {
			continue
		}
		if i, ok := index[line.Key()]; ok {
			lines[i].Quantity = roundQuantity(lines[i].Quantity + line.Quantity)
			lines[i].TotalPriceAtTime = pricing.Round2(lines[i].TotalPriceAtTime + line.TotalPriceAtTime)
			lines[i].PendingQuantity = roundQuantity(lines[i].PendingQuantity + line.PendingQuantity)
			continue
		}
		index[line.Key()] = len(lines)
		lines = append(lines, line)
	}
	return lines, nil
}

func roundQuantity(q float64) float64 {
	return decimal.NewFromFloat(q).Round(8).InexactFloat64()
}

func isDegraded(err error) bool {
	return errors.Is(err, entity.ErrRemoteUnavailable) || errors.Is(err, entity.ErrUnauthorized)
}
