// Package store provides usage counter persistence for rate limiting.
package store

import (
	"context"
	"time"
)

// UsageStore counts events per key within an expiring window. Keys encode
// identity and window bucket; the first Increment of a key starts its TTL.
//
// Increment must be atomic: two concurrent calls for the same key always
// observe distinct counts.
type UsageStore interface {
	// Increment adds one to the counter and returns the new value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Peek returns the current counter value, 0 when absent or expired.
	Peek(ctx context.Context, key string) (int64, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// NoopStore never counts. It backs the limiter while rate limiting is
// disabled.
type NoopStore struct{}

// Increment always returns 0.
func (NoopStore) Increment(context.Context, string, time.Duration) (int64, error) { return 0, nil }

// Peek always returns 0.
func (NoopStore) Peek(context.Context, string) (int64, error) { return 0, nil }

// Ping always succeeds.
func (NoopStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (NoopStore) Close() error { return nil }
