package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tea-storefront/internal/entity"
)

const productListKey = "products:all"

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

type ProductService struct {
	productRepo ProductStore
	rdb         *redis.Client
	events      EventPublisher
	cacheTTL    time.Duration
}

// NewProductService creates a new instance of ProductService.
func NewProductService(productRepo ProductStore, rdb *redis.Client, events EventPublisher, cacheTTL time.Duration) *ProductService {
	return &ProductService{
		productRepo: productRepo,
		rdb:         rdb,
		events:      events,
		cacheTTL:    cacheTTL,
	}
}

// GetProducts returns the full product list, served from redis when cached.
func (p *ProductService) GetProducts(ctx context.Context) ([]entity.Product, error) {
	var products []entity.Product
	if p.readCache(ctx, productListKey, &products) {
		return products, nil
	}

	products, err := p.productRepo.GetProducts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error getting products")
		return nil, err
	}

	p.writeCache(ctx, productListKey, products)
	return products, nil
}

func (p *ProductService) GetProduct(ctx context.Context, id string) (*entity.Product, error) {
	var cached entity.Product
	if p.readCache(ctx, productKey(id), &cached) {
		return &cached, nil
	}

	product, err := p.productRepo.GetProductByID(ctx, id)
	if err != nil {
		if !errors.Is(err, entity.ErrProductNotFound) {
			logger.Error().Err(err).Msgf("Error getting product by ID %s", id)
		}
		return nil, err
	}

	p.writeCache(ctx, productKey(id), product)
	return product, nil
}

func (p *ProductService) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}
	product.SortTiers()

	created, err := p.productRepo.CreateProduct(ctx, product)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating product")
		return nil, err
	}

	p.productsChanged(ctx, created.ID)
	return created, nil
}

func (p *ProductService) UpdateProduct(ctx context.Context, id string, product *entity.Product) (*entity.Product, error) {
	product.ID = id
	if err := product.Validate(); err != nil {
		return nil, err
	}
	product.SortTiers()

	updated, err := p.productRepo.UpdateProduct(ctx, product)
	if err != nil {
		if !errors.Is(err, entity.ErrProductNotFound) {
			logger.Error().Err(err).Msgf("Error updating product %s", id)
		}
		return nil, err
	}

	p.productsChanged(ctx, id)
	return updated, nil
}

func (p *ProductService) DeleteProduct(ctx context.Context, id string) error {
	if err := p.productRepo.DeleteProduct(ctx, id); err != nil {
		if !errors.Is(err, entity.ErrProductNotFound) {
			logger.Error().Err(err).Msgf("Error deleting product %s", id)
		}
		return err
	}

	p.productsChanged(ctx, id)
	return nil
}

// productsChanged drops the cached copies and publishes the new list on the
// realtime feed. Failures here do not fail the write.
func (p *ProductService) productsChanged(ctx context.Context, id string) {
	if err := p.rdb.Del(ctx, productListKey, productKey(id)).Err(); err != nil {
		logger.Error().Err(err).Msg("Error invalidating product cache")
	}

	if p.events == nil {
		return
	}
	products, err := p.productRepo.GetProducts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error loading products for snapshot")
		return
	}
	if err := p.events.PublishProducts(ctx, products); err != nil {
		logger.Error().Err(err).Msg("Error publishing product snapshot")
		return
	}
	logger.Info().Msgf("Published product snapshot with %d products", len(products))
}

func (p *ProductService) readCache(ctx context.Context, key string, out any) bool {
	cached, err := p.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn().Err(err).Msgf("Error reading %s from cache", key)
		}
		return false
	}
	if err := json.Unmarshal([]byte(cached), out); err != nil {
		logger.Warn().Err(err).Msgf("Error unmarshalling %s from cache", key)
		return false
	}
	return true
}

func (p *ProductService) writeCache(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		logger.Error().Err(err).Msgf("Error marshalling %s", key)
		return
	}
	if err := p.rdb.Set(ctx, key, data, p.cacheTTL).Err(); err != nil {
		logger.Warn().Err(err).Msgf("Error setting %s in cache", key)
	}
}
