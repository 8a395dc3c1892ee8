package zap

import (
	"errors"
	"testing"

	"github.com/unkn0wn-root/kvbus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Warn("broadcast rejected", kvbus.Fields{"topic": "jobs", "err": errors.New("queue is full")})
	l.Debug("no fields", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel || e.LoggerName != "kvbus" || e.Message != "broadcast rejected" {
		t.Fatalf("entry = %+v", e.Entry)
	}
	ctx := e.ContextMap()
	if ctx["topic"] != "jobs" || ctx["error"] != "queue is full" {
		t.Fatalf("fields = %v", ctx)
	}
	if len(entries[1].Context) != 0 {
		t.Fatalf("unexpected fields: %v", entries[1].Context)
	}
}
