package kvbus

import (
	"context"
	"iter"
	"time"

	goredis "github.com/redis/go-redis/v9"

	c "github.com/unkn0wn-root/kvbus/codec"
	pr "github.com/unkn0wn-root/kvbus/provider"
)

// KeepTTL passed to Cache.Replace keeps the previous entry's expiry.
const KeepTTL = pr.KeepTTL

// Cache is a typed key-value cache with expiring entries.
// K must round-trip through its codec and encode deterministically.
type Cache[K comparable, V any] interface {
	Name() string

	// Get returns the live value for key; ok=false when absent or expired.
	Get(ctx context.Context, key K) (v V, ok bool, err error)

	// Pop atomically removes key and returns its live value.
	Pop(ctx context.Context, key K) (v V, ok bool, err error)

	// Put inserts or overwrites key with expiry now+ttl. ttl must be > 0.
	Put(ctx context.Context, key K, value V, ttl time.Duration) error

	// Replace writes value only if a live entry exists for key and returns the
	// value it overwrote. ttl > 0 sets a fresh expiry; KeepTTL (any ttl <= 0)
	// keeps the previous entry's expiry.
	Replace(ctx context.Context, key K, value V, ttl time.Duration) (prev V, replaced bool, err error)
}

// Channel broadcasts typed events on one topic.
type Channel[T any] interface {
	Topic() string

	// Broadcast delivers event to every subscription active on the topic.
	// No subscriptions => the event is dropped, not an error.
	Broadcast(ctx context.Context, event T) error

	// Listen opens an independent subscription that observes every event
	// broadcast after Listen returns.
	Listen(ctx context.Context) (Subscription[T], error)
}

// Subscription is one consumer of a Channel. It is not restartable and not
// safe for concurrent Recv calls.
type Subscription[T any] interface {
	// Recv blocks for the next event. A decode failure returns an
	// Encoding *Error and the following Recv continues with the next event.
	// ErrSubscriptionClosed ends the sequence.
	Recv(ctx context.Context) (T, error)

	// Events yields (event, nil) or (zero, decode error) pairs until the
	// subscription closes or ctx is done; a context error is yielded last.
	Events(ctx context.Context) iter.Seq2[T, error]

	Close() error
}

// Options tune an Engine. All fields are optional.
type Options struct {
	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// Now is the local backend's clock; nil => time.Now.
	Now func() time.Time

	// RedisClient replaces dialing Config.Redis.ConnectionString.
	RedisClient goredis.UniversalClient
	// CloseClient: set true only if the engine exclusively owns RedisClient.
	// A client dialed by the engine is always closed by Engine.Close.
	CloseClient bool
	// SubscriptionBuffer is the go-redis delivery buffer per redis
	// subscription; 0 => 100.
	SubscriptionBuffer int
}

// CacheOptions select the codecs of a cache. nil codecs default to CBOR,
// deterministic for keys.
type CacheOptions[K comparable, V any] struct {
	KeyCodec   c.Codec[K]
	ValueCodec c.Codec[V]
}

// ChannelOptions select the event codec. nil defaults to CBOR.
type ChannelOptions[T any] struct {
	Codec c.Codec[T]
}
