package local

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	pr "github.com/unkn0wn-root/kvbus/provider"
)

// Bus is a fixed-capacity broadcast ring. Every subscription owns a cursor
// into the ring; a slot is reusable once every cursor has moved past it.
//
// Publish never blocks: when any cursor lags by a full ring it fails with
// ErrQueueFull and writes nothing, so a stalled consumer is visible to the
// producer instead of silently losing events.
//
// A slot is released as soon as every subscription that was active when it
// was written has read it or left.
type Bus struct {
	mu      sync.Mutex
	slots   [][]byte
	pending []int  // readers still owed each slot
	head    uint64 // sequence number of the next publish
	subs    map[*subscription]struct{}
	notify  chan struct{} // closed and replaced on every state change
	closed  bool
}

var _ pr.Bus = (*Bus)(nil)

// NewBus creates a bus holding up to capacity undelivered payloads per
// subscription. capacity must be positive.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		panic(fmt.Sprintf("local bus: capacity must be positive, got %d", capacity))
	}
	return &Bus{
		slots:   make([][]byte, capacity),
		pending: make([]int, capacity),
		subs:    make(map[*subscription]struct{}),
		notify:  make(chan struct{}),
	}
}

func (b *Bus) Publish(ctx context.Context, payload []byte) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("%w: %w", pr.ErrUnavailable, pr.ErrClosed)
	}
	if len(b.subs) == 0 {
		return nil
	}
	capacity := uint64(len(b.slots))
	for s := range b.subs {
		if b.head-s.next >= capacity {
			return fmt.Errorf("%w: %w", pr.ErrUnavailable, pr.ErrQueueFull)
		}
	}
	i := b.head % capacity
	b.slots[i] = bytes.Clone(payload)
	b.pending[i] = len(b.subs)
	b.head++
	b.wakeLocked()
	return nil
}

func (b *Bus) Subscribe(ctx context.Context) (pr.Subscription, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: %w", pr.ErrUnavailable, pr.ErrClosed)
	}
	s := &subscription{bus: b, next: b.head}
	b.subs[s] = struct{}{}
	return s, nil
}

// Close ends the bus. Subscriptions drain what they already hold, then
// observe ErrClosed.
func (b *Bus) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.wakeLocked()
	return nil
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// consumedLocked records that one reader is done with seq.
func (b *Bus) consumedLocked(seq uint64) {
	i := seq % uint64(len(b.slots))
	b.pending[i]--
	if b.pending[i] <= 0 {
		b.slots[i] = nil
	}
}

func (b *Bus) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

type subscription struct {
	bus    *Bus
	next   uint64 // guarded by bus.mu
	closed bool   // guarded by bus.mu
}

func (s *subscription) Next(ctx context.Context) ([]byte, error) {
	b := s.bus
	for {
		b.mu.Lock()
		if s.closed {
			b.mu.Unlock()
			return nil, pr.ErrClosed
		}
		if s.next < b.head {
			// the last reader of a slot takes the buffer itself
			i := s.next % uint64(len(b.slots))
			p := b.slots[i]
			if b.pending[i] > 1 {
				p = bytes.Clone(p)
			}
			b.consumedLocked(s.next)
			s.next++
			b.mu.Unlock()
			return p, nil
		}
		if b.closed {
			b.mu.Unlock()
			return nil, pr.ErrClosed
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *subscription) Close() error {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(b.subs, s)
	for seq := s.next; seq < b.head; seq++ {
		b.consumedLocked(seq)
	}
	b.wakeLocked()
	return nil
}
