package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tea-storefront/internal/entity"
)

func TestGetProductsCacheAside(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	repo := newMemProducts(oolong(), teaPet())
	svc := NewProductService(repo, rdb, nil, time.Minute)
	ctx := context.Background()

	first, err := svc.GetProducts(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, mr.Exists(productListKey))

	second, err := svc.GetProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.reads, "second read served from redis")
}

func TestGetProductsWithRedisDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	svc := NewProductService(newMemProducts(teaPet()), rdb, nil, time.Minute)

	products, err := svc.GetProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestCreateProductPublishesSnapshotAndInvalidates(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	events := &recordingPublisher{}
	svc := NewProductService(newMemProducts(teaPet()), rdb, events, time.Minute)
	ctx := context.Background()

	_, err := svc.GetProducts(ctx)
	require.NoError(t, err)

	created, err := svc.CreateProduct(ctx, &entity.Product{Name: "Sencha", Unit: entity.UnitPiece, Price: 12})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, mr.Exists(productListKey))

	require.Len(t, events.snapshots, 1)
	assert.Len(t, events.snapshots[0], 2)
}

func TestCreateProductRejectsInvalid(t *testing.T) {
	_, rdb := setupTestRedis(t)
	svc := NewProductService(newMemProducts(), rdb, nil, time.Minute)

	_, err := svc.CreateProduct(context.Background(), &entity.Product{Name: "Bad", Unit: entity.UnitKg, MinQuantity: 5, MaxQuantity: 1})
	assert.ErrorIs(t, err, entity.ErrInvalidProduct)
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	_, rdb := setupTestRedis(t)
	events := &recordingPublisher{}
	svc := NewProductService(newMemProducts(teaPet()), rdb, events, time.Minute)
	ctx := context.Background()

	cached, err := svc.GetProduct(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 45.0, cached.Price)

	changed := teaPet()
	changed.Price = 50
	_, err = svc.UpdateProduct(ctx, "2", &changed)
	require.NoError(t, err)

	got, err := svc.GetProduct(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Price, "update invalidates the cached product")

	require.NoError(t, svc.DeleteProduct(ctx, "2"))
	assert.ErrorIs(t, svc.DeleteProduct(ctx, "2"), entity.ErrProductNotFound)
	_, err = svc.GetProduct(ctx, "2")
	assert.ErrorIs(t, err, entity.ErrProductNotFound)

	assert.Len(t, events.snapshots, 2)
	assert.Empty(t, events.snapshots[1])
}
