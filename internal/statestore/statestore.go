// Package statestore defines the StateStore collaborator: the distributed
// key-value backend used for cluster-mode rate limiting, sticky sessions,
// health probe result propagation, and node registry / leader election.
// A single-node gateway runs entirely on the in-memory implementation; a
// clustered gateway points it at Redis.
package statestore

import (
	"context"
	"time"
)

// StateStore is a key-value store with TTL, atomic increment, and pub/sub,
// per the external-interfaces contract: implementations must expose get,
// setEx, incrBy, and watch.
type StateStore interface {
	// Get returns the value stored at key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// SetEx stores value at key with the given TTL.
	SetEx(ctx context.Context, key string, value string, ttl time.Duration) error

	// IncrBy atomically adds delta to the integer stored at key, creating it
	// at 0 first if absent, and returns the new value. If ttl is non-zero and
	// the key did not previously exist, the new key is created with that TTL.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Watch subscribes to updates published on channel. The returned function
	// cancels the subscription. Publishers use Publish with the same channel
	// name; the exact wire shape of the payload is left to the caller.
	Watch(ctx context.Context, channel string) (<-chan string, func(), error)

	// Publish sends payload to all current Watch subscribers of channel.
	Publish(ctx context.Context, channel string, payload string) error

	// Close releases any underlying connection resources.
	Close() error
}
