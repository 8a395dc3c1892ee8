package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf encodes proto messages. Marshal runs in deterministic mode so
// messages with map fields are usable as cache keys.
type Protobuf[T proto.Message] struct {
	new func() T
}

// NewProtobuf takes the message constructor used on Decode, e.g.
// func() *pb.Order { return &pb.Order{} }.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

var errNoCtor = errors.New("codec: protobuf codec built without NewProtobuf")

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.new == nil {
		var zero T
		return zero, errNoCtor
	}
	m := c.new()
	err := proto.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(b, m)
	return m, err
}
