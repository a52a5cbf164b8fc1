package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/reconcile"
)

var _ reconcile.Feed = (*Client)(nil)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type chanReader struct {
	msgs   chan kafka.Message
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newChanReader() *chanReader {
	return &chanReader{
		msgs:   make(chan kafka.Message, 8),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (r *chanReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case err := <-r.errs:
		return kafka.Message{}, err
	case msg := <-r.msgs:
		return msg, nil
	}
}

func (r *chanReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func snapshot(t *testing.T, products ...entity.Product) kafka.Message {
	t.Helper()
	data, err := json.Marshal(products)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(SnapshotKey), Value: data}
}

func TestPublisherKeys(t *testing.T) {
	products := &recordingWriter{}
	orders := &recordingWriter{}
	pub := NewPublisher(products, orders)
	ctx := context.Background()

	require.NoError(t, pub.PublishProducts(ctx, nil))
	require.NoError(t, pub.PublishOrderEvent(ctx, OrderCreated, &entity.Order{ID: 42}))

	require.Len(t, products.msgs, 1)
	assert.Equal(t, SnapshotKey, string(products.msgs[0].Key))
	assert.JSONEq(t, `[]`, string(products.msgs[0].Value))

	require.Len(t, orders.msgs, 1)
	assert.Equal(t, "order-created-42", string(orders.msgs[0].Key))
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	reader := newChanReader()
	client := NewClient(func() Reader { return reader })
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()

	got := make(chan []entity.Product, 4)
	unsubscribe := client.Subscribe(func(p []entity.Product) { got <- p }, func(err error) { t.Errorf("unexpected error: %v", err) })

	reader.msgs <- kafka.Message{Key: []byte("order-created-1"), Value: []byte(`{}`)}
	reader.msgs <- kafka.Message{Key: []byte(SnapshotKey), Value: []byte(`{"broken":`)}
	reader.msgs <- snapshot(t, entity.Product{ID: "1", Name: "Sencha", Price: 10, Unit: entity.UnitPiece})

	select {
	case products := <-got:
		require.Len(t, products, 1)
		assert.Equal(t, "Sencha", products[0].Name)
	case <-time.After(time.Second):
		t.Fatal("snapshot not delivered")
	}

	unsubscribe()
	select {
	case <-reader.closed:
	case <-time.After(time.Second):
		t.Fatal("reader not closed after unsubscribe")
	}
}

func TestReadFailureReportedOnce(t *testing.T) {
	reader := newChanReader()
	client := NewClient(func() Reader { return reader })
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()

	errs := make(chan error, 2)
	client.Subscribe(func([]entity.Product) {}, func(err error) { errs <- err })
	reader.errs <- errors.New("connection reset")

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, entity.ErrRemoteUnavailable)
		assert.True(t, strings.Contains(err.Error(), "connection reset"))
	case <-time.After(time.Second):
		t.Fatal("error not reported")
	}
	<-reader.closed
	assert.Empty(t, errs)
}

func TestSubscribeBeforeConnect(t *testing.T) {
	client := NewClient(func() Reader { return newChanReader() })

	errs := make(chan error, 1)
	client.Subscribe(func([]entity.Product) {}, func(err error) { errs <- err })

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrNotConnected)
	case <-time.After(time.Second):
		t.Fatal("error not reported")
	}
}

func TestDisconnectEndsSubscriptionsQuietly(t *testing.T) {
	reader := newChanReader()
	client := NewClient(func() Reader { return reader })
	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.Connected())

	client.Subscribe(func([]entity.Product) {}, func(err error) { t.Errorf("unexpected error: %v", err) })
	client.Disconnect()
	assert.False(t, client.Connected())

	select {
	case <-reader.closed:
	case <-time.After(time.Second):
		t.Fatal("reader not closed after disconnect")
	}
}
