package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is a Codec that serializes values using vmihailenco/msgpack/v5.
// The zero value is ready to use for values and events.
//
// Set SortMapKeys when V is used as a cache key. The encoder only sorts
// string-keyed generic maps, so in this mode the value is first normalized
// through any (every map and struct becomes map[string]any) and then encoded
// with sorted keys. Maps with non-string keys fail to encode in this mode.
//
// Use `msgpack:"fieldName"` tags if you need explicit control.
type Msgpack[V any] struct {
	SortMapKeys bool
}

func (c Msgpack[V]) Encode(v V) ([]byte, error) {
	if !c.SortMapKeys {
		return msgpack.Marshal(v)
	}
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	var norm any
	if err := msgpack.Unmarshal(raw, &norm); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(norm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
