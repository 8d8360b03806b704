// Package cache defines the key/value ledger the token service records
// token states in.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or has expired.
var ErrNotFound = errors.New("cache: key not found")

type Store interface {
	// Set writes value under key. A zero ttl keeps the entry until it is
	// deleted explicitly.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
