// Package kv defines the shared key-value substrate port (interface).
package kv

import (
	"context"
	"time"
)

// Store is the port interface for the shared key-value substrate. All
// cross-instance coordination state (cached settings, profiles, answers,
// counters, locks) lives behind this interface.
type Store interface {
	// Get returns the value for a key. The second return is false when the
	// key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores a value only if the key does not already exist.
	// Returns true when the write won. Used for locks and alert dedupe.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrBy atomically adds delta to a numeric counter, creating it at
	// delta when absent, and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Keys lists keys matching a prefix. Used by cache invalidation.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
