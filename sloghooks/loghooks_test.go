package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSampling(t *testing.T) {
	var buf bytes.Buffer
	h := New(newTestLogger(&buf), Options{ExpiredEvery: 3})
	for i := 0; i < 9; i++ {
		h.EntryExpired("sessions")
	}
	if n := strings.Count(buf.String(), "kvbus.entry_expired"); n != 3 {
		t.Fatalf("logged %d records, want 3", n)
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	h := New(newTestLogger(&buf), Options{Redact: SHA256})
	h.BroadcastRejected("tenant-42/orders", errors.New("queue is full"))

	out := buf.String()
	if strings.Contains(out, "tenant-42") {
		t.Fatalf("topic leaked: %s", out)
	}
	if !strings.Contains(out, "topic="+SHA256("tenant-42/orders")) || !strings.Contains(out, "queue is full") {
		t.Fatalf("unexpected record: %s", out)
	}
	if len(SHA256("x")) != 16 {
		t.Fatalf("SHA256 prefix length = %d", len(SHA256("x")))
	}
}

func TestSubscriptionRecordsOptIn(t *testing.T) {
	var buf bytes.Buffer
	h := New(newTestLogger(&buf), Options{})
	h.SubscriptionOpened("t")
	if buf.Len() != 0 {
		t.Fatalf("unexpected record: %s", buf.String())
	}
	h = New(newTestLogger(&buf), Options{LogSubscriptions: true})
	h.SubscriptionOpened("t")
	h.SubscriptionClosed("t")
	if n := strings.Count(buf.String(), "kvbus.subscription_"); n != 2 {
		t.Fatalf("logged %d subscription records", n)
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.EntryExpired("x")
	h.EventDecodeFailed("x", errors.New("bad"))
}
