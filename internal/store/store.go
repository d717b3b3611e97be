// Package store provides the key-value side store backing the arrival
// cache, the provider scratch space, and the device activity records. Two
// implementations exist: a redis-backed store for shared deployments and an
// in-memory twin with identical semantics for tests and single-node runs.
package store

import (
	"context"
	"time"
)

// KV is the side-store contract. A ttl of zero means no expiry. MGet is
// positional: absent keys yield nil slots. Scan returns the keys matching a
// prefix; callers treat the result as a snapshot, not a consistent view.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	MSet(ctx context.Context, pairs map[string][]byte) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, prefix string) ([]string, error)
}
