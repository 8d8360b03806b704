package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/cache"
	goredis "github.com/redis/go-redis/v9"
)

// Store is a cache.Store backed by a single redis instance. Every call is
// bounded by the configured operation timeout. Keys embed bearer tokens, so
// errors never quote them.
type Store struct {
	client    *goredis.Client
	opTimeout time.Duration
}

func NewClient(cfg internal.CacheConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.OpTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})
}

func NewStore(client *goredis.Client, opTimeout time.Duration) cache.Store {
	return &Store{client: client, opTimeout: opTimeout}
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := internal.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", cache.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := internal.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := internal.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	return s.client.Ping(ctx).Err()
}
