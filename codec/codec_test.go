package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type point struct {
	X int    `json:"x" msgpack:"x"`
	Y int    `json:"y" msgpack:"y"`
	L string `json:"l" msgpack:"l"`
}

func TestCodecsRoundTripStruct(t *testing.T) {
	in := point{X: 3, Y: -4, L: "p"}
	codecs := map[string]Codec[point]{
		"cbor":        MustCBOR[point](false),
		"cbor-det":    MustCBOR[point](true),
		"json":        JSON[point]{},
		"msgpack":     Msgpack[point]{},
		"msgpack-det": Msgpack[point]{SortMapKeys: true},
		"limit(json)": Limit[point]{Inner: JSON[point]{}, MaxDecode: 1024},
	}
	for name, c := range codecs {
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if out != in {
			t.Fatalf("%s: got %+v want %+v", name, out, in)
		}
	}
}

func TestDeterministicCBORStableForMaps(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a := map[string]int{}
	b := map[string]int{}
	keys := []string{"zeta", "alpha", "mid", "beta", "omega", "k1", "k2", "k3"}
	for i, k := range keys {
		a[k] = i
	}
	for i := len(keys) - 1; i >= 0; i-- {
		b[keys[i]] = i
	}
	for n := 0; n < 20; n++ {
		ea, err := c.Encode(a)
		if err != nil {
			t.Fatal(err)
		}
		eb, err := c.Encode(b)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(ea, eb) {
			t.Fatalf("deterministic encoding differs: %x vs %x", ea, eb)
		}
	}
}

func TestCBORDecodeGarbage(t *testing.T) {
	c := MustCBOR[point](false)
	if _, err := c.Decode([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Fatalf("expected decode error on garbage")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected size error, got %v", err)
	}
	got, err := c.Decode([]byte("1234"))
	if err != nil || got != "1234" {
		t.Fatalf("got %q err=%v", got, err)
	}

	unlimited := Limit[string]{Inner: String{}}
	if _, err := unlimited.Decode([]byte(strings.Repeat("x", 1<<16))); err != nil {
		t.Fatalf("MaxDecode=0 should disable limit: %v", err)
	}
}

func TestRawCodecsIdentity(t *testing.T) {
	b, _ := Bytes{}.Encode([]byte{1, 2, 3})
	if out, _ := (Bytes{}).Decode(b); !bytes.Equal(out, []byte{1, 2, 3}) {
		t.Fatalf("bytes identity broken: %v", out)
	}
	s, _ := String{}.Encode("héllo")
	if out, _ := (String{}).Decode(s); out != "héllo" {
		t.Fatalf("string identity broken: %q", out)
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("event"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.GetValue() != "event" {
		t.Fatalf("got %q", out.GetValue())
	}
}

func TestProtobufDeterministicMaps(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	m1, err := structpb.NewStruct(map[string]any{"a": 1, "b": "two", "c": true, "d": 4.5})
	if err != nil {
		t.Fatal(err)
	}
	m2 := proto.Clone(m1).(*structpb.Struct)

	e1, err := c.Encode(m1)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := c.Encode(m2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e1, e2) {
		t.Fatalf("deterministic proto encoding differs")
	}
}

func TestMsgpackSortedMapKeys(t *testing.T) {
	c := Msgpack[map[string]int]{SortMapKeys: true}
	a := map[string]int{"x": 1, "y": 2, "z": 3, "w": 4}
	want, err := c.Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < 20; n++ {
		b := map[string]int{"w": 4, "z": 3, "y": 2, "x": 1}
		got, _ := c.Encode(b)
		if !bytes.Equal(got, want) {
			t.Fatalf("sorted msgpack differs: %x vs %x", got, want)
		}
	}
	back, err := c.Decode(want)
	if err != nil || len(back) != 4 || back["z"] != 3 {
		t.Fatalf("decode: %v %v", back, err)
	}
}

type taggedKey struct {
	Tenant string           `msgpack:"tenant"`
	Labels map[string]int   `msgpack:"labels"`
	Nested map[string][]int `msgpack:"nested"`
}

func TestMsgpackSortedNestedMaps(t *testing.T) {
	c := Msgpack[taggedKey]{SortMapKeys: true}
	mk := func() taggedKey {
		k := taggedKey{Tenant: "acme", Labels: map[string]int{}, Nested: map[string][]int{}}
		for i, l := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
			k.Labels[l] = i
			k.Nested[l] = []int{i, -i}
		}
		return k
	}
	want, err := c.Encode(mk())
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < 20; n++ {
		got, err := c.Encode(mk())
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("nested sorted msgpack differs: %x vs %x", got, want)
		}
	}
	back, err := c.Decode(want)
	if err != nil || back.Tenant != "acme" || back.Labels["h"] != 7 || back.Nested["c"][1] != -2 {
		t.Fatalf("decode: %+v %v", back, err)
	}
}

func TestMsgpackSortedRejectsNonStringMapKeys(t *testing.T) {
	c := Msgpack[map[int]string]{SortMapKeys: true}
	if _, err := c.Encode(map[int]string{1: "a", 2: "b"}); err == nil {
		t.Fatal("int-keyed map cannot be encoded canonically")
	}
}

func TestProtobufZeroValueDecode(t *testing.T) {
	var c Protobuf[*wrapperspb.StringValue]
	if _, err := c.Decode(nil); err == nil {
		t.Fatal("zero Protobuf codec should refuse to decode")
	}
}
