package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/kvbus/provider"
)

// DefaultChannelSize is the go-redis delivery buffer per subscription.
// A consumer that falls this far behind for a minute loses messages.
const DefaultChannelSize = 100

// Bus publishes to one redis channel. Every subscription holds its own
// dedicated pub/sub connection outside the command pool.
type Bus struct {
	rdb         goredis.UniversalClient
	channel     string
	channelSize int

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ pr.Bus = (*Bus)(nil)

func NewBus(client goredis.UniversalClient, channel string, channelSize int) (*Bus, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if channelSize <= 0 {
		channelSize = DefaultChannelSize
	}
	return &Bus{
		rdb:         client,
		channel:     channel,
		channelSize: channelSize,
		subs:        make(map[*subscription]struct{}),
	}, nil
}

// Channel returns the fully prefixed redis channel name.
func (b *Bus) Channel() string { return b.channel }

func (b *Bus) Publish(ctx context.Context, payload []byte) error {
	return wrap(b.rdb.Publish(ctx, b.channel, payload).Err())
}

// Subscribe waits for the server's subscribe confirmation, so anything
// published after it returns reaches the new subscription.
func (b *Bus) Subscribe(ctx context.Context) (pr.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", pr.ErrUnavailable, pr.ErrClosed)
	}
	b.mu.Unlock()

	ps := b.rdb.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, wrap(err)
	}

	s := &subscription{
		bus:  b,
		ps:   ps,
		ch:   ps.Channel(goredis.WithChannelSize(b.channelSize)),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %w", pr.ErrUnavailable, pr.ErrClosed)
	}
	b.subs[s] = struct{}{}
	return s, nil
}

// Close ends every subscription opened through this bus.
func (b *Bus) Close(context.Context) error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	var first error
	for _, s := range subs {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type subscription struct {
	bus  *Bus
	ps   *goredis.PubSub
	ch   <-chan *goredis.Message
	done chan struct{}
	once sync.Once
}

func (s *subscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-s.done:
		return nil, pr.ErrClosed
	default:
	}
	select {
	case m, ok := <-s.ch:
		if !ok {
			return nil, pr.ErrClosed
		}
		return []byte(m.Payload), nil
	case <-s.done:
		return nil, pr.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		if cerr := s.ps.Close(); cerr != nil && cerr != goredis.ErrClosed {
			err = wrap(cerr)
		}
	})
	return err
}
