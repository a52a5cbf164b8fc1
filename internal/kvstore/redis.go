package kvstore

import (
	"context"
	"errors"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultChangeChannel is the pub/sub channel carrying "<origin>|<key>" change notices.
const DefaultChangeChannel = "storefront:kv:changes"

// Redis is a Store backed by redis. Every write publishes a change notice so
// that other processes sharing the keys can re-read them.
type Redis struct {
	rdb     *redis.Client
	prefix  string
	channel string
	origin  string
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{
		rdb:     rdb,
		prefix:  prefix,
		channel: DefaultChangeChannel,
		origin:  uuid.NewString(),
	}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return err
	}
	r.publish(ctx, key)
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return err
	}
	r.publish(ctx, key)
	return nil
}

func (r *Redis) publish(ctx context.Context, key string) {
	if err := r.rdb.Publish(ctx, r.channel, r.origin+"|"+r.prefix+key).Err(); err != nil {
		logger.Warn().Err(err).Msgf("Error publishing change notice for %s", key)
	}
}

// Watch subscribes to change notices for key from other origins. The returned
// cancel func closes the subscription.
func (r *Redis) Watch(ctx context.Context, key string, fn func()) (func(), error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	target := r.prefix + key
	go func() {
		for msg := range sub.Channel() {
			origin, changed, ok := strings.Cut(msg.Payload, "|")
			if !ok || origin == r.origin || changed != target {
				continue
			}
			fn()
		}
	}()

	return func() {
		if err := sub.Close(); err != nil {
			logger.Warn().Err(err).Msgf("Error closing watch on %s", key)
		}
	}, nil
}
