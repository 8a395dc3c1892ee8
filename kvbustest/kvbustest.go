// Package kvbustest provides contract tests every kvbus backend must pass.
package kvbustest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/kvbus"
)

// Factory builds a fresh engine for one test and returns a function that
// moves that engine's notion of time forward by d.
type Factory func(t *testing.T) (e *kvbus.Engine, advance func(d time.Duration))

// ManualClock is a settable clock for the local backend (Options.Now).
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var seq atomic.Uint64

// uniqueName keeps runs against a shared server from observing each other.
func uniqueName(t *testing.T) string {
	return fmt.Sprintf("%s:%d:%d", t.Name(), time.Now().UnixNano(), seq.Add(1))
}

func newEngine(t *testing.T, f Factory) (*kvbus.Engine, func(time.Duration)) {
	t.Helper()
	e, advance := f(t)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e, advance
}

func mustCache[K comparable, V any](t *testing.T, e *kvbus.Engine, name string, opts kvbus.CacheOptions[K, V]) kvbus.Cache[K, V] {
	t.Helper()
	c, err := kvbus.NewCache[K, V](e, name, opts)
	if err != nil {
		t.Fatalf("NewCache(%q): %v", name, err)
	}
	return c
}

func mustChannel[T any](t *testing.T, e *kvbus.Engine, topic string, opts kvbus.ChannelOptions[T]) kvbus.Channel[T] {
	t.Helper()
	ch, err := kvbus.NewChannel[T](e, topic, opts)
	if err != nil {
		t.Fatalf("NewChannel(%q): %v", topic, err)
	}
	return ch
}
