package cache

import (
	"context"
	"errors"
)

// ErrStoreFull is returned by a Store when it rejects a write for lack of capacity
var ErrStoreFull = errors.New("cache store full")

// Store is a string-keyed byte store backing the result cache. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	RemoveByPrefix(ctx context.Context, prefix string) (int, error)
}
