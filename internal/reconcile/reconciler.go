package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/kvstore"
	"tea-storefront/internal/tombstone"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "reconcile").Logger()

// Source names where a product list came from.
type Source string

const (
	SourceRealtime Source = "realtime"
	SourceFetch    Source = "fetch"
)

const (
	DefaultProductsKey   = "products"
	DefaultTombstonesKey = "product-tombstones"
)

// Fetcher performs a one-shot read of the full product list.
type Fetcher interface {
	FetchProducts(ctx context.Context) ([]entity.Product, error)
}

// Feed is a realtime product feed. onChange receives full snapshots; onError
// reports a broken subscription, after which no more snapshots arrive.
type Feed interface {
	Subscribe(onChange func([]entity.Product), onError func(error)) (unsubscribe func())
}

type Config struct {
	ProductsKey   string
	TombstonesKey string
	// MaxAttempts caps both fetch retries and consecutive feed resubscribes.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProductsKey:     DefaultProductsKey,
		TombstonesKey:   DefaultTombstonesKey,
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

type Option func(*Reconciler)

// WithLedger replaces the tombstone ledger, e.g. to control its clock.
func WithLedger(ledger *tombstone.Ledger) Option {
	return func(r *Reconciler) { r.ledger = ledger }
}

// OnDegraded registers fn to be called once the realtime feed has failed
// MaxAttempts times in a row.
func OnDegraded(fn func(error)) Option {
	return func(r *Reconciler) { r.onDegraded = fn }
}

// Reconciler owns the product list shown to the user.
type Reconciler struct {
	// passMu serializes passes so a pass never reads a list another pass is replacing.
	passMu sync.Mutex

	mu       sync.RWMutex
	products []entity.Product
	byID     map[string]int

	kv     kvstore.Store
	ledger *tombstone.Ledger
	cfg    Config

	subMu       sync.Mutex
	subscribers map[int]func([]entity.Product)
	nextSub     int

	feedMu         sync.Mutex
	feed           Feed
	feedCtx        context.Context
	generation     int
	unsubscribe    func()
	retryTimer     *time.Timer
	backoff        *backoff.ExponentialBackOff
	failures       int
	realtimeActive bool
	degraded       bool
	onDegraded     func(error)
}

// New creates a Reconciler seeded from the persisted product list and
// tombstone ledger. Undecodable persisted state is discarded.
func New(ctx context.Context, kv kvstore.Store, cfg Config, opts ...Option) *Reconciler {
	def := DefaultConfig()
	if cfg.ProductsKey == "" {
		cfg.ProductsKey = def.ProductsKey
	}
	if cfg.TombstonesKey == "" {
		cfg.TombstonesKey = def.TombstonesKey
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}

	r := &Reconciler{
		kv:          kv,
		cfg:         cfg,
		subscribers: make(map[int]func([]entity.Product)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ledger == nil {
		r.ledger = tombstone.NewLedger()
	}

	r.loadTombstones(ctx)
	r.setProducts(r.loadProducts(ctx))
	return r
}

// Products returns a copy of the current list.
func (r *Reconciler) Products() []entity.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]entity.Product{}, r.products...)
}

// Product looks a product up by id.
func (r *Reconciler) Product(id string) (entity.Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return entity.Product{}, false
	}
	return r.products[i], true
}

// Apply reconciles an incoming list into the current one. A fetched list is
// discarded while the realtime feed is delivering; Apply reports whether the
// list was used.
func (r *Reconciler) Apply(ctx context.Context, source Source, incoming []entity.Product) bool {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	if source == SourceFetch && r.RealtimeActive() {
		logger.Debug().Int("count", len(incoming)).Msg("Discarding fetched products, realtime feed attached")
		return false
	}

	if purged := r.ledger.PurgeExpired(); purged > 0 {
		logger.Debug().Int("purged", purged).Msg("Expired tombstones dropped")
		r.persistTombstones(ctx)
	}
	merged := Merge(r.Products(), incoming, r.ledger.IsActive)
	r.commit(ctx, merged)

	logger.Info().Str("source", string(source)).Int("incoming", len(incoming)).Int("products", len(merged)).Msg("Products reconciled")
	return true
}

// Upsert inserts p or replaces the entry with the same id. Used for
// optimistic admin writes before the server confirms them.
func (r *Reconciler) Upsert(ctx context.Context, p entity.Product) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	products := r.Products()
	if i := indexOf(products, p.ID); i >= 0 {
		products[i] = p
	} else {
		products = append(products, p)
	}
	r.commit(ctx, products)
}

// Promote replaces the locally created entry localID with its
// server-confirmed version. If the confirmed id is already listed (a realtime
// snapshot got there first) the local entry is just dropped.
func (r *Reconciler) Promote(ctx context.Context, localID string, confirmed entity.Product) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	products := r.Products()
	li := indexOf(products, localID)
	ci := indexOf(products, confirmed.ID)
	switch {
	case ci >= 0:
		products[ci] = confirmed
		if li >= 0 && li != ci {
			products = append(products[:li], products[li+1:]...)
		}
	case li >= 0:
		products[li] = confirmed
	default:
		products = append(products, confirmed)
	}
	r.commit(ctx, products)
}

// Remove drops id from the list and records a tombstone so that snapshots
// taken before the delete cannot resurrect it.
func (r *Reconciler) Remove(ctx context.Context, id string) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	r.ledger.Record(id)
	r.persistTombstones(ctx)

	products := r.Products()
	if i := indexOf(products, id); i >= 0 {
		products = append(products[:i], products[i+1:]...)
	}
	r.commit(ctx, products)
}

// Restore undoes Remove after the server rejected the delete.
func (r *Reconciler) Restore(ctx context.Context, p entity.Product) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	r.ledger.Forget(p.ID)
	r.persistTombstones(ctx)

	products := r.Products()
	if indexOf(products, p.ID) < 0 {
		products = append(products, p)
	}
	r.commit(ctx, products)
}

// Refresh fetches the full list with retries and reconciles it. On failure
// the current list stays in place and the error is returned.
func (r *Reconciler) Refresh(ctx context.Context, fetcher Fetcher) error {
	products, err := backoff.Retry(ctx, func() ([]entity.Product, error) {
		products, err := fetcher.FetchProducts(ctx)
		if errors.Is(err, entity.ErrUnauthorized) {
			return nil, backoff.Permanent(err)
		}
		return products, err
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(uint(r.cfg.MaxAttempts)))
	if err != nil {
		logger.Warn().Err(err).Msg("Product fetch failed, keeping cached products")
		return fmt.Errorf("fetch products: %w", err)
	}

	r.Apply(ctx, SourceFetch, products)
	return nil
}

// Attach subscribes to the realtime feed. A broken subscription is retried
// with exponential backoff; after MaxAttempts consecutive failures the
// reconciler gives up, marks itself degraded and keeps the cached list.
func (r *Reconciler) Attach(ctx context.Context, feed Feed) {
	r.feedMu.Lock()
	r.stopFeedLocked()
	r.feed = feed
	r.feedCtx = ctx
	r.failures = 0
	r.degraded = false
	r.backoff = r.newBackOff()
	gen := r.generation
	r.feedMu.Unlock()

	r.resubscribe(gen)
}

// Detach drops the realtime subscription.
func (r *Reconciler) Detach() {
	r.feedMu.Lock()
	defer r.feedMu.Unlock()
	r.stopFeedLocked()
	r.feed = nil
}

func (r *Reconciler) RealtimeActive() bool {
	r.feedMu.Lock()
	defer r.feedMu.Unlock()
	return r.realtimeActive
}

// Degraded reports whether the feed was given up on.
func (r *Reconciler) Degraded() bool {
	r.feedMu.Lock()
	defer r.feedMu.Unlock()
	return r.degraded
}

// Subscribe registers fn for list changes. fn is called once synchronously
// with the current list before Subscribe returns.
func (r *Reconciler) Subscribe(fn func([]entity.Product)) (unsubscribe func()) {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	r.subMu.Unlock()

	fn(r.Products())

	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subscribers, id)
	}
}

// Watch reloads the list and ledger whenever another writer changes them.
func (r *Reconciler) Watch(ctx context.Context) (func(), error) {
	stopProducts, err := r.kv.Watch(ctx, r.cfg.ProductsKey, func() { r.reload(ctx) })
	if err != nil {
		return nil, err
	}
	stopTombstones, err := r.kv.Watch(ctx, r.cfg.TombstonesKey, func() { r.reload(ctx) })
	if err != nil {
		stopProducts()
		return nil, err
	}
	return func() {
		stopProducts()
		stopTombstones()
	}, nil
}

func (r *Reconciler) reload(ctx context.Context) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	r.loadTombstones(ctx)
	products := r.loadProducts(ctx)
	r.setProducts(products)
	r.publish(products)
}

// resubscribe opens subscription gen unless it was superseded meanwhile.
// The feed is called without holding feedMu since it may deliver synchronously.
func (r *Reconciler) resubscribe(gen int) {
	r.feedMu.Lock()
	feed := r.feed
	if gen != r.generation || feed == nil {
		r.feedMu.Unlock()
		return
	}
	r.feedMu.Unlock()

	unsubscribe := feed.Subscribe(
		func(products []entity.Product) { r.onSnapshot(gen, products) },
		func(err error) { r.onFeedError(gen, err) },
	)

	r.feedMu.Lock()
	defer r.feedMu.Unlock()
	if gen != r.generation {
		go unsubscribe()
		return
	}
	r.unsubscribe = unsubscribe
}

func (r *Reconciler) onSnapshot(gen int, products []entity.Product) {
	r.feedMu.Lock()
	if gen != r.generation || r.feed == nil {
		r.feedMu.Unlock()
		return
	}
	r.realtimeActive = true
	r.degraded = false
	r.failures = 0
	r.backoff.Reset()
	ctx := r.feedCtx
	r.feedMu.Unlock()

	r.Apply(ctx, SourceRealtime, products)
}

func (r *Reconciler) onFeedError(gen int, err error) {
	r.feedMu.Lock()
	if gen != r.generation || r.feed == nil {
		r.feedMu.Unlock()
		return
	}
	r.generation++
	next := r.generation
	r.realtimeActive = false
	if unsubscribe := r.unsubscribe; unsubscribe != nil {
		r.unsubscribe = nil
		go unsubscribe()
	}
	r.failures++

	if r.failures >= r.cfg.MaxAttempts {
		r.degraded = true
		notify := r.onDegraded
		r.feedMu.Unlock()

		logger.Error().Err(err).Int("attempts", r.cfg.MaxAttempts).Msg("Realtime product feed unavailable, serving cached products")
		if notify != nil {
			notify(err)
		}
		return
	}

	delay := r.backoff.NextBackOff()
	logger.Warn().Err(err).Int("attempt", r.failures).Dur("retry_in", delay).Msg("Realtime product feed failed, resubscribing")
	r.retryTimer = time.AfterFunc(delay, func() { r.resubscribe(next) })
	r.feedMu.Unlock()
}

func (r *Reconciler) stopFeedLocked() {
	r.generation++
	if r.retryTimer != nil {
		r.retryTimer.Stop()
		r.retryTimer = nil
	}
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	r.realtimeActive = false
}

func (r *Reconciler) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	return b
}

// commit swaps in the new list, persists it and notifies subscribers. Callers hold passMu.
func (r *Reconciler) commit(ctx context.Context, products []entity.Product) {
	r.setProducts(products)

	data, err := json.Marshal(products)
	if err != nil {
		logger.Error().Err(err).Msg("Error encoding products")
	} else if err := r.kv.Set(ctx, r.cfg.ProductsKey, string(data)); err != nil {
		logger.Error().Err(err).Msg("Error persisting products")
	}

	r.publish(products)
}

func (r *Reconciler) setProducts(products []entity.Product) {
	byID := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}

	r.mu.Lock()
	r.products = append([]entity.Product{}, products...)
	r.byID = byID
	r.mu.Unlock()
}

func (r *Reconciler) publish(products []entity.Product) {
	r.subMu.Lock()
	fns := make([]func([]entity.Product), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(append([]entity.Product{}, products...))
	}
}

func (r *Reconciler) persistTombstones(ctx context.Context) {
	data, err := json.Marshal(r.ledger)
	if err != nil {
		logger.Error().Err(err).Msg("Error encoding tombstones")
		return
	}
	if err := r.kv.Set(ctx, r.cfg.TombstonesKey, string(data)); err != nil {
		logger.Error().Err(err).Msg("Error persisting tombstones")
	}
}

func (r *Reconciler) loadProducts(ctx context.Context) []entity.Product {
	raw, found, err := r.kv.Get(ctx, r.cfg.ProductsKey)
	if err != nil {
		logger.Error().Err(err).Msg("Error reading cached products")
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	products, rejected, err := entity.DecodeProducts([]byte(raw))
	if err != nil {
		logger.Warn().Err(err).Msg("Discarding cached products")
		return nil
	}
	if rejected > 0 {
		logger.Warn().Int("rejected", rejected).Msg("Dropped unusable cached products")
	}
	return products
}

func (r *Reconciler) loadTombstones(ctx context.Context) {
	raw, found, err := r.kv.Get(ctx, r.cfg.TombstonesKey)
	if err != nil {
		logger.Error().Err(err).Msg("Error reading tombstones")
		return
	}
	if !found || raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), r.ledger); err != nil {
		logger.Warn().Err(err).Msg("Discarding persisted tombstones")
	}
}

func indexOf(products []entity.Product, id string) int {
	for i, p := range products {
		if p.ID == id {
			return i
		}
	}
	return -1
}
