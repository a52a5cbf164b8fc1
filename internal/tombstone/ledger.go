// Package tombstone records recently deleted product ids so that a snapshot
// read racing with the delete cannot bring the product back.
package tombstone

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultGraceWindow is how long a deletion suppresses the product.
const DefaultGraceWindow = 2 * time.Minute

type Ledger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	grace   time.Duration
	now     func() time.Time
}

type Option func(*Ledger)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithGraceWindow(d time.Duration) Option {
	return func(l *Ledger) { l.grace = d }
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		entries: make(map[string]time.Time),
		grace:   DefaultGraceWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record marks id as deleted now.
func (l *Ledger) Record(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = l.now()
}

// Forget removes id, e.g. after a delete was rolled back.
func (l *Ledger) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// IsActive reports whether id was deleted within the grace window. An expired
// entry is dropped on the spot.
func (l *Ledger) IsActive(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	deletedAt, ok := l.entries[id]
	if !ok {
		return false
	}
	if l.now().Sub(deletedAt) > l.grace {
		delete(l.entries, id)
		return false
	}
	return true
}

// PurgeExpired drops every entry older than the grace window and returns how many were removed.
func (l *Ledger) PurgeExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	purged := 0
	for id, deletedAt := range l.entries {
		if now.Sub(deletedAt) > l.grace {
			delete(l.entries, id)
			purged++
		}
	}
	return purged
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// MarshalJSON encodes the ledger as {"id": unixMillis}.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int64, len(l.entries))
	for id, deletedAt := range l.entries {
		out[id] = deletedAt.UnixMilli()
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces the ledger contents with a persisted snapshot.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var in map[string]int64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]time.Time, len(in))
	for id, ms := range in {
		l.entries[id] = time.UnixMilli(ms)
	}
	return nil
}
