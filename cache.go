package kvbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/kvbus/codec"
	"github.com/unkn0wn-root/kvbus/internal/keys"
	pr "github.com/unkn0wn-root/kvbus/provider"
)

type cache[K comparable, V any] struct {
	name   string
	ns     string
	store  pr.Store
	keys   c.Codec[K]
	values c.Codec[V]
}

var errNilEngine = errors.New("kvbus: engine is required")

// NewCache returns a handle on the cache called name. Handles created for the
// same name from one engine share their entries, whatever their K and V.
func NewCache[K comparable, V any](e *Engine, name string, opts CacheOptions[K, V]) (Cache[K, V], error) {
	if e == nil {
		return nil, errNilEngine
	}
	if name == "" {
		return nil, fmt.Errorf("kvbus: cache name is required")
	}

	kc := opts.KeyCodec
	if kc == nil {
		det, err := c.NewCBOR[K](true)
		if err != nil {
			return nil, fmt.Errorf("kvbus: key codec: %w", err)
		}
		kc = det
	}
	vc := opts.ValueCodec
	if vc == nil {
		cb, err := c.NewCBOR[V](false)
		if err != nil {
			return nil, fmt.Errorf("kvbus: value codec: %w", err)
		}
		vc = cb
	}

	store, ns := e.store(name)
	return &cache[K, V]{
		name:   name,
		ns:     ns,
		store:  store,
		keys:   kc,
		values: vc,
	}, nil
}

func (ch *cache[K, V]) Name() string { return ch.name }

func (ch *cache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	k, err := ch.storageKey(key)
	if err != nil {
		return zero, false, encodingError("get", ch.name, err)
	}
	raw, ok, err := ch.store.Get(ctx, k)
	if err != nil {
		return zero, false, backendError("get", ch.name, err)
	}
	if !ok {
		return zero, false, nil
	}
	v, err := ch.values.Decode(raw)
	if err != nil {
		return zero, false, encodingError("get", ch.name, err)
	}
	return v, true, nil
}

func (ch *cache[K, V]) Pop(ctx context.Context, key K) (V, bool, error) {
	var zero V
	k, err := ch.storageKey(key)
	if err != nil {
		return zero, false, encodingError("pop", ch.name, err)
	}
	raw, ok, err := ch.store.GetDel(ctx, k)
	if err != nil {
		return zero, false, backendError("pop", ch.name, err)
	}
	if !ok {
		return zero, false, nil
	}
	v, err := ch.values.Decode(raw)
	if err != nil {
		return zero, false, encodingError("pop", ch.name, err)
	}
	return v, true, nil
}

func (ch *cache[K, V]) Put(ctx context.Context, key K, value V, ttl time.Duration) error {
	k, err := ch.storageKey(key)
	if err != nil {
		return encodingError("put", ch.name, err)
	}
	payload, err := ch.values.Encode(value)
	if err != nil {
		return encodingError("put", ch.name, err)
	}
	if err := ch.store.Set(ctx, k, payload, ttl); err != nil {
		return backendError("put", ch.name, err)
	}
	return nil
}

// Replace encodes both key and value before touching the store, so an
// encoding failure never leaves a partial write. The previous value is
// decoded after the atomic swap; if that fails the write has still happened.
func (ch *cache[K, V]) Replace(ctx context.Context, key K, value V, ttl time.Duration) (V, bool, error) {
	var zero V
	k, err := ch.storageKey(key)
	if err != nil {
		return zero, false, encodingError("replace", ch.name, err)
	}
	payload, err := ch.values.Encode(value)
	if err != nil {
		return zero, false, encodingError("replace", ch.name, err)
	}
	raw, ok, err := ch.store.Replace(ctx, k, payload, ttl)
	if err != nil {
		return zero, false, backendError("replace", ch.name, err)
	}
	if !ok {
		return zero, false, nil
	}
	prev, err := ch.values.Decode(raw)
	if err != nil {
		return zero, true, encodingError("replace", ch.name, err)
	}
	return prev, true, nil
}

func (ch *cache[K, V]) storageKey(key K) (string, error) {
	b, err := ch.keys.Encode(key)
	if err != nil {
		return "", err
	}
	return keys.Entry(ch.ns, b), nil
}
