// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    ExpiredEvery:      100, // sample: ~every 100th expiry
//	    DecodeFailedEvery: 1,   // log every undecodable event
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	engine, _ := kvbus.NewEngine(ctx, cfg, kvbus.Options{
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/kvbus"
)

// Hooks forwards events to inner on background workers. When the queue is
// full the event is dropped and counted; the engine never waits on a hook.
type Hooks struct {
	inner   kvbus.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on a closed q
	closed  bool
	dropped atomic.Uint64
}

var _ kvbus.Hooks = (*Hooks)(nil)

func New(inner kvbus.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to run.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was
// full or the hooks were closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) EntryExpired(name string) { h.try(func() { h.inner.EntryExpired(name) }) }
func (h *Hooks) BroadcastRejected(topic string, err error) {
	h.try(func() { h.inner.BroadcastRejected(topic, err) })
}
func (h *Hooks) EventDecodeFailed(topic string, err error) {
	h.try(func() { h.inner.EventDecodeFailed(topic, err) })
}
func (h *Hooks) SubscriptionOpened(topic string) { h.try(func() { h.inner.SubscriptionOpened(topic) }) }
func (h *Hooks) SubscriptionClosed(topic string) { h.try(func() { h.inner.SubscriptionClosed(topic) }) }
