package tokenstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/gosight/perfship/internal/config"
)

// Redis stores the token under its stream key in a Redis instance shared by
// every shipper writing to that stream.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(ctx context.Context, cfg config.RedisConfig, key string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return NewRedisFromClient(rdb, key), nil
}

func NewRedisFromClient(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) Read(ctx context.Context) (string, bool, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

func (r *Redis) Write(ctx context.Context, token string) error {
	if token == "" {
		return r.client.Del(ctx, r.key).Err()
	}
	return r.client.Set(ctx, r.key, token, 0).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
