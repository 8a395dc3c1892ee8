package kvbus

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseConfig(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Config
	}{
		{"local", "type: local\nqueue_size: 32\n", Local(32)},
		{"local default size", "type: local\n", Local(0)},
		{"redis", "type: redis\nprefix: \"app:\"\nconnection_string: redis://localhost:6379/0\n",
			Redis("app:", "redis://localhost:6379/0")},
		{"json", `{"type":"redis","prefix":"p:","connection_string":"redis://h:1"}`, Redis("p:", "redis://h:1")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseConfig([]byte(tc.in))
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"missing type":     "queue_size: 3\n",
		"unknown type":     "type: memcached\n",
		"foreign field":    "type: local\nprefix: x\n",
		"typo":             "type: redis\nconection_string: x\n",
		"negative queue":   "type: local\nqueue_size: -1\n",
		"not a mapping":    "- local\n",
		"wrong value type": "type: local\nqueue_size: lots\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(in))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("ParseConfig(%q) err=%v, want ErrInvalidConfig", in, err)
			}
		})
	}
}

func TestConfigUnknownFieldsListed(t *testing.T) {
	_, err := ParseConfig([]byte("type: local\nzeta: 1\nalpha: 2\n"))
	if err == nil || !strings.Contains(err.Error(), "alpha, zeta") {
		t.Fatalf("err=%v", err)
	}
}

func TestConfigMarshalRoundTrip(t *testing.T) {
	for _, cfg := range []Config{Local(8), Redis("x:", "redis://h:6379/1")} {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		back, err := ParseConfig(out)
		if err != nil {
			t.Fatalf("ParseConfig(%s): %v", out, err)
		}
		if back != cfg {
			t.Fatalf("round trip: %+v != %+v", back, cfg)
		}
	}
	// only the selected variant is emitted
	out, _ := yaml.Marshal(Local(8))
	if strings.Contains(string(out), "prefix") {
		t.Fatalf("local config leaked redis fields:\n%s", out)
	}
	if _, err := yaml.Marshal(Config{}); err == nil {
		t.Fatal("marshalling an untyped config should fail")
	}
}

func TestConfigJSONRoundTrip(t *testing.T) {
	out, err := json.Marshal(Redis("x:", "redis://h:6379/1"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"redis","prefix":"x:","connection_string":"redis://h:6379/1"}`
	if string(out) != want {
		t.Fatalf("json = %s, want %s", out, want)
	}

	var back Config
	if err := json.Unmarshal([]byte(`{"type":"local","queue_size":4}`), &back); err != nil {
		t.Fatal(err)
	}
	if back != Local(4) {
		t.Fatalf("decoded %+v", back)
	}
	if err := json.Unmarshal([]byte(`{"type":"local","prefix":"p"}`), &back); err == nil {
		t.Fatal("foreign field accepted from JSON")
	}
}

func TestValidateNegativeQueueSize(t *testing.T) {
	err := Local(-1).Validate()
	if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "must not be negative") {
		t.Fatalf("err=%v", err)
	}
	if err := Local(0).Validate(); err != nil {
		t.Fatalf("zero queue_size selects the default: %v", err)
	}
}
