package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"tea-storefront/internal/entity"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

type memProducts struct {
	mu       sync.Mutex
	products map[string]entity.Product
	nextID   int
	reads    int
}

func newMemProducts(products ...entity.Product) *memProducts {
	m := &memProducts{products: make(map[string]entity.Product), nextID: 100}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memProducts) GetProducts(context.Context) ([]entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	out := make([]entity.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProducts) GetProductByID(_ context.Context, id string) (*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, entity.ErrProductNotFound)
	}
	return &p, nil
}

func (m *memProducts) CreateProduct(_ context.Context, p *entity.Product) (*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = strconv.Itoa(m.nextID)
	m.products[p.ID] = *p
	return p, nil
}

func (m *memProducts) UpdateProduct(_ context.Context, p *entity.Product) (*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return nil, entity.ErrProductNotFound
	}
	m.products[p.ID] = *p
	return p, nil
}

func (m *memProducts) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return entity.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

type memLines struct {
	mu     sync.Mutex
	lines  map[string][]entity.CartLineItem
	nextID int
}

func newMemLines() *memLines {
	return &memLines{lines: make(map[string][]entity.CartLineItem)}
}

func (m *memLines) GetLines(_ context.Context, session string) ([]entity.CartLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.CartLineItem{}, m.lines[session]...), nil
}

func (m *memLines) SaveLine(_ context.Context, session string, line entity.CartLineItem) (entity.CartLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.lines[session] {
		if existing.Key() == line.Key() {
			line.ServerID = existing.ServerID
			m.lines[session][i] = line
			return line, nil
		}
	}
	m.nextID++
	line.ServerID = strconv.Itoa(m.nextID)
	m.lines[session] = append(m.lines[session], line)
	return line, nil
}

func (m *memLines) SaveLines(ctx context.Context, session string, lines []entity.CartLineItem) error {
	for _, line := range lines {
		if _, err := m.SaveLine(ctx, session, line); err != nil {
			return err
		}
	}
	return nil
}

func (m *memLines) DeleteLine(_ context.Context, session, serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, line := range m.lines[session] {
		if line.ServerID == serverID {
			m.lines[session] = append(m.lines[session][:i], m.lines[session][i+1:]...)
			return nil
		}
	}
	return entity.ErrCartLineNotFound
}

func (m *memLines) ClearLines(_ context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines, session)
	return nil
}

type memOrders struct {
	mu     sync.Mutex
	lines  *memLines
	orders map[int64]entity.Order
	nextID int64
}

func (m *memOrders) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	order.ID = m.nextID
	m.orders[order.ID] = *order
	_ = m.lines.ClearLines(ctx, order.SessionID)
	return order, nil
}

func (m *memOrders) GetOrderByID(_ context.Context, session string, id int64) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.SessionID != session {
		return nil, entity.ErrOrderNotFound
	}
	return &order, nil
}

func (m *memOrders) UpdateOrderStatus(_ context.Context, session string, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.SessionID != session {
		return entity.ErrOrderNotFound
	}
	order.Status = status
	m.orders[id] = order
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots [][]entity.Product
	events    []string
}

func (r *recordingPublisher) PublishProducts(_ context.Context, products []entity.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, products)
	return nil
}

func (r *recordingPublisher) PublishOrderEvent(_ context.Context, kind string, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("order-%s-%d", kind, order.ID))
	return nil
}

func oolong() entity.Product {
	return entity.Product{
		ID:             "1",
		Name:           "Da Hong Pao",
		Unit:           entity.UnitKg,
		BasePricePerKg: 240,
		KgStep:         0.1,
		MinQuantity:    0.1,
		MaxQuantity:    2,
		PriceTiers: []entity.PriceTier{
			{MinTotalWeight: 0, PricePerKg: 240},
			{MinTotalWeight: 1000, PricePerKg: 200},
		},
		InStock: true,
	}
}

func teaPet() entity.Product {
	return entity.Product{ID: "2", Name: "Tea pet", Unit: entity.UnitPiece, Price: 45, InStock: true}
}

func soldOut() entity.Product {
	return entity.Product{ID: "3", Name: "Gushu", Unit: entity.UnitPiece, Price: 90, InStock: false}
}
