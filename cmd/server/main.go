package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"tea-storefront/internal/api"
	"tea-storefront/internal/auth"
	"tea-storefront/internal/config"
	"tea-storefront/internal/realtime"
	"tea-storefront/internal/repository"
	"tea-storefront/internal/service"
	"tea-storefront/internal/sharding"
	"tea-storefront/migrations"
)

func connectDB(shard config.DBConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", shard.DSN())
		if err == nil {
			err = db.Ping()
			if err == nil {
				log.Info().Msgf("Connected to DB %s", shard.Name)
				return db, nil
			}
		}
		log.Warn().Err(err).Msgf("Retry %d: failed to connect to DB %s (%s:%s)", i+1, shard.Name, shard.Host, shard.Port)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %v", shard.Name, shard.Host, shard.Port, err)
}

func main() {
	cfg := config.LoadServer()

	dbs := make([]*sql.DB, 0, len(cfg.Shards))
	for _, shard := range cfg.Shards {
		db, err := connectDB(shard)
		if err != nil {
			panic(err)
		}
		dbs = append(dbs, db)
	}

	if err := migrations.AutoMigrateProducts(3, dbs[0]); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate products table")
	}
	if err := migrations.AutoMigrateShards(3, dbs...); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cart and order tables")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	productWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.ProductTopic)
	orderWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.OrderTopic)
	defer productWriter.Close()
	defer orderWriter.Close()
	events := realtime.NewPublisher(productWriter, orderWriter)

	router := sharding.NewShardRouter(len(dbs))

	productRepo := repository.NewProductRepository(dbs[0])
	cartRepo := repository.NewCartRepository(dbs, router)
	orderRepo := repository.NewOrderRepository(dbs, router)

	productService := service.NewProductService(productRepo, rdb, events, cfg.CacheTTL)
	cartService := service.NewCartService(productService, cartRepo)
	orderService := service.NewOrderService(productService, cartRepo, orderRepo, rdb, events, cfg.IdempotentTTL)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	e := echo.New()

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	api.Register(e, api.Handlers{
		Session: api.NewSessionHandler(issuer, cfg.AdminKey),
		Product: api.NewProductHandler(productService),
		Cart:    api.NewCartHandler(cartService),
		Order:   api.NewOrderHandler(orderService),
	}, issuer)

	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
