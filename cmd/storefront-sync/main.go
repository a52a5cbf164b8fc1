package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"tea-storefront/internal/cart"
	"tea-storefront/internal/cartsync"
	"tea-storefront/internal/catalog"
	"tea-storefront/internal/config"
	"tea-storefront/internal/entity"
	"tea-storefront/internal/kvstore"
	"tea-storefront/internal/realtime"
	"tea-storefront/internal/reconcile"
	"tea-storefront/internal/remote"
	"tea-storefront/internal/tombstone"
)

// guestToken opens an anonymous session when no token is configured.
func guestToken(ctx context.Context, baseURL string) (string, error) {
	var session struct {
		Token string `json:"token"`
	}
	client := remote.NewClient(baseURL, nil, nil)
	err := client.Do(ctx, remote.Request{Method: http.MethodPost, Path: "/session", Public: true}, &session)
	return session.Token, err
}

func main() {
	cfg := config.LoadSync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	kv := kvstore.NewRedis(rdb, cfg.KeyPrefix)

	token := cfg.Token
	if token == "" {
		var err error
		token, err = guestToken(ctx, cfg.APIBaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("No session, cart stays local")
		}
	}
	api := remote.NewClient(cfg.APIBaseURL, remote.StaticToken(token), nil)

	ledger := tombstone.NewLedger(tombstone.WithGraceWindow(cfg.TombstoneGrace))
	products := reconcile.New(ctx, kv, reconcile.Config{
		MaxAttempts:     cfg.RetryAttempts,
		InitialInterval: cfg.RetryBaseDelay,
	}, reconcile.WithLedger(ledger), reconcile.OnDegraded(func(err error) {
		log.Error().Err(err).Msg("Realtime product feed degraded, serving cached products")
	}))

	stopWatch, err := products.Watch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to watch product cache")
	}
	defer stopWatch()

	feed := realtime.NewClient(func() realtime.Reader {
		return config.NewKafkaReader(cfg.KafkaBrokers, cfg.ProductTopic, cfg.GroupID)
	})
	if err := feed.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect realtime feed")
	}
	defer feed.Disconnect()
	products.Attach(ctx, feed)
	defer products.Detach()

	fetcher := catalog.NewClient(api)
	if err := products.Refresh(ctx, fetcher); err != nil {
		log.Warn().Err(err).Msg("Initial product fetch failed")
	}

	store := cart.NewStore(ctx, kv, products, cart.WithRemote(cartsync.NewClient(api)))
	stopCartWatch, err := store.Watch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to watch cart")
	}
	defer stopCartWatch()

	if token != "" {
		if err := store.MergeRemote(ctx); err != nil {
			log.Warn().Err(err).Msg("Cart merge failed, keeping local cart")
		}
	}

	unsubscribeCart := store.Subscribe(func(lines []entity.CartLineItem) {
		log.Info().Int("lines", len(lines)).Float64("total", store.Total()).Msg("Cart changed")
	})
	defer unsubscribeCart()
	unsubscribeProducts := products.Subscribe(func(list []entity.Product) {
		log.Info().Int("products", len(list)).Bool("realtime", products.RealtimeActive()).Msg("Products changed")
	})
	defer unsubscribeProducts()

	ticker := time.NewTicker(cfg.RefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return
		case <-ticker.C:
			if err := products.Refresh(ctx, fetcher); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("Product refresh failed")
			}
		}
	}
}
