package kvstore

import (
	"context"
	"sync"
)

type memoryBackend struct {
	mu       sync.Mutex
	data     map[string]string
	watchers map[int]memoryWatcher
	nextID   int
}

type memoryWatcher struct {
	origin *Memory
	key    string
	fn     func()
}

// Memory is an in-process Store. Handles created with Peer share the same data
// and see each other's writes as external changes, the way two browser tabs
// share one storage area.
type Memory struct {
	backend *memoryBackend
}

func NewMemory() *Memory {
	return &Memory{backend: &memoryBackend{
		data:     make(map[string]string),
		watchers: make(map[int]memoryWatcher),
	}}
}

// Peer returns another handle on the same data with its own notification origin.
func (m *Memory) Peer() *Memory {
	return &Memory{backend: m.backend}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	value, ok := m.backend.data[key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.backend.mu.Lock()
	m.backend.data[key] = value
	m.backend.mu.Unlock()
	m.notify(key)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.backend.mu.Lock()
	delete(m.backend.data, key)
	m.backend.mu.Unlock()
	m.notify(key)
	return nil
}

func (m *Memory) Watch(_ context.Context, key string, fn func()) (func(), error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	id := m.backend.nextID
	m.backend.nextID++
	m.backend.watchers[id] = memoryWatcher{origin: m, key: key, fn: fn}

	return func() {
		m.backend.mu.Lock()
		defer m.backend.mu.Unlock()
		delete(m.backend.watchers, id)
	}, nil
}

func (m *Memory) notify(key string) {
	m.backend.mu.Lock()
	var fns []func()
	for _, w := range m.backend.watchers {
		if w.key == key && w.origin != m {
			fns = append(fns, w.fn)
		}
	}
	m.backend.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
