// Package provider defines the backend store abstraction used by kvbus.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). The same holds for Bus payloads.
//
// Keys handed to a Store are already namespaced by the caller; a Store never
// interprets them beyond equality.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable marks failures to reach or acquire the backend transport
	// (dial, pool timeout, broken connection, closed client).
	ErrUnavailable = errors.New("backend unavailable")

	// ErrAccess marks faults reported by the backend itself while accessing a
	// value (e.g. a redis error reply, a cancelled local operation).
	ErrAccess = errors.New("backend access fault")

	// ErrQueueFull is returned by a local Bus when at least one subscription
	// has not drained enough to make room for another event.
	ErrQueueFull = errors.New("queue is full")

	// ErrClosed is returned by Subscription.Next once the underlying transport
	// is closed and no buffered payload remains.
	ErrClosed = errors.New("subscription closed")

	// ErrInvalidTTL is returned by Store.Set for non-positive TTLs.
	ErrInvalidTTL = errors.New("ttl must be positive")
)

// KeepTTL passed to Store.Replace keeps the previous entry's expiry.
// Mirrors go-redis' KeepTTL sentinel.
const KeepTTL time.Duration = -1

// Store is a minimal byte store with TTLs.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss or expiry.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// GetDel atomically removes key and returns its live value.
	// (nil, false, nil) when absent or expired.
	GetDel(ctx context.Context, key string) ([]byte, bool, error)

	// Set unconditionally stores value with expiry now+ttl. ttl must be > 0.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Replace stores value only if a live entry exists under key, returning
	// the previous bytes. ttl > 0 sets a fresh expiry; ttl <= 0 keeps the
	// previous one. The existence check and write are one atomic step.
	Replace(ctx context.Context, key string, value []byte, ttl time.Duration) (prev []byte, ok bool, err error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// Bus is a byte fan-out transport bound to one topic.
// Must be safe for concurrent use.
type Bus interface {
	// Publish delivers payload to every subscription active at call time.
	// No subscriptions => payload is dropped and nil is returned.
	Publish(ctx context.Context, payload []byte) error

	// Subscribe creates a subscription that observes every payload published
	// after Subscribe returns.
	Subscribe(ctx context.Context) (Subscription, error)

	// Close ends every subscription on this bus.
	Close(ctx context.Context) error
}

// Subscription is a single consumer cursor on a Bus.
type Subscription interface {
	// Next blocks until a payload is available, ctx is done, or the transport
	// closes (ErrClosed).
	Next(ctx context.Context) ([]byte, error)

	// Close detaches the subscription. Safe to call multiple times.
	Close() error
}
