// Package codec converts typed keys, values and events to the opaque bytes
// handed to a backend store, and back.
//
// Implementations must be deterministic for key types: equal keys must always
// encode to equal bytes, because backends compare keys by their encoding.
package codec

// Codec encodes/decodes values V to []byte for storage or transport.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
