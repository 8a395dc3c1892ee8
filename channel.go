package kvbus

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	c "github.com/unkn0wn-root/kvbus/codec"
	pr "github.com/unkn0wn-root/kvbus/provider"
)

type channel[T any] struct {
	topic string
	bus   pr.Bus
	codec c.Codec[T]
	log   Logger
	hooks Hooks
}

// NewChannel returns a handle on topic. Handles for the same topic from one
// engine share subscribers.
func NewChannel[T any](e *Engine, topic string, opts ChannelOptions[T]) (Channel[T], error) {
	if e == nil {
		return nil, errNilEngine
	}
	if topic == "" {
		return nil, fmt.Errorf("kvbus: channel topic is required")
	}
	ec := opts.Codec
	if ec == nil {
		cb, err := c.NewCBOR[T](false)
		if err != nil {
			return nil, fmt.Errorf("kvbus: event codec: %w", err)
		}
		ec = cb
	}
	return &channel[T]{
		topic: topic,
		bus:   e.bus(topic),
		codec: ec,
		log:   e.log,
		hooks: e.hooks,
	}, nil
}

func (ch *channel[T]) Topic() string { return ch.topic }

func (ch *channel[T]) Broadcast(ctx context.Context, event T) error {
	payload, err := ch.codec.Encode(event)
	if err != nil {
		return encodingError("broadcast", ch.topic, err)
	}
	if err := ch.bus.Publish(ctx, payload); err != nil {
		if errors.Is(err, pr.ErrQueueFull) {
			ch.hooks.BroadcastRejected(ch.topic, err)
			ch.log.Warn("broadcast rejected: subscriber queue full", Fields{"topic": ch.topic})
		}
		return backendError("broadcast", ch.topic, err)
	}
	return nil
}

func (ch *channel[T]) Listen(ctx context.Context) (Subscription[T], error) {
	sub, err := ch.bus.Subscribe(ctx)
	if err != nil {
		return nil, backendError("listen", ch.topic, err)
	}
	ch.hooks.SubscriptionOpened(ch.topic)
	return &subscription[T]{ch: ch, sub: sub}, nil
}

type subscription[T any] struct {
	ch   *channel[T]
	sub  pr.Subscription
	once sync.Once
}

func (s *subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	p, err := s.sub.Next(ctx)
	if err != nil {
		switch {
		case errors.Is(err, pr.ErrClosed):
			return zero, ErrSubscriptionClosed
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return zero, err
		default:
			return zero, backendError("recv", s.ch.topic, err)
		}
	}
	v, err := s.ch.codec.Decode(p)
	if err != nil {
		s.ch.hooks.EventDecodeFailed(s.ch.topic, err)
		s.ch.log.Debug("event decode failed", Fields{"topic": s.ch.topic, "err": err})
		return zero, encodingError("recv", s.ch.topic, err)
	}
	return v, nil
}

func (s *subscription[T]) Events(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := s.Recv(ctx)
			if errors.Is(err, ErrSubscriptionClosed) {
				return
			}
			if err != nil && !IsKind(err, KindEncoding) {
				yield(v, err)
				return
			}
			if !yield(v, err) {
				return
			}
		}
	}
}

func (s *subscription[T]) Close() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Close()
		s.ch.hooks.SubscriptionClosed(s.ch.topic)
	})
	return err
}
