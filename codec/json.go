package codec

import "encoding/json"

// JSON encodes with encoding/json. Map keys are sorted by the encoder, so it
// is deterministic enough for key use with plain struct and map keys.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
