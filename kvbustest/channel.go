package kvbustest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/kvbus"
	"github.com/unkn0wn-root/kvbus/codec"
)

const recvTimeout = 5 * time.Second

// Event carries its producer and a per-producer sequence number so ordering
// can be checked across concurrent producers.
type Event struct {
	Producer int
	Seq      int
}

// RunChannelTests runs the channel contract against engines built by f.
func RunChannelTests(t *testing.T, f Factory) {
	t.Run("NoReplay", func(t *testing.T) { testNoReplay(t, f) })
	t.Run("SPSC", func(t *testing.T) { testFanOut(t, f, 1, 1) })
	t.Run("SPMC", func(t *testing.T) { testFanOut(t, f, 1, 3) })
	t.Run("MPSC", func(t *testing.T) { testFanOut(t, f, 3, 1) })
	t.Run("MPMC", func(t *testing.T) { testFanOut(t, f, 3, 3) })
	t.Run("SharedTopicHandles", func(t *testing.T) { testSharedTopic(t, f) })
	t.Run("DistinctTopicsIsolated", func(t *testing.T) { testDistinctTopics(t, f) })
	t.Run("DecodeFailureKeepsSubscription", func(t *testing.T) { testDecodeFailure(t, f) })
	t.Run("IndependentDelivery", func(t *testing.T) { testIndependentDelivery(t, f) })
	t.Run("Events", func(t *testing.T) { testEvents(t, f) })
	t.Run("RecvHonorsContext", func(t *testing.T) { testRecvContext(t, f) })
	t.Run("CloseSubscription", func(t *testing.T) { testCloseSubscription(t, f) })
	t.Run("CloseEngineEndsSubscriptions", func(t *testing.T) { testCloseEngine(t, f) })
}

func recv[T any](t *testing.T, s kvbus.Subscription[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), recvTimeout)
	defer cancel()
	v, err := s.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	return v
}

func listen[T any](t *testing.T, ch kvbus.Channel[T]) kvbus.Subscription[T] {
	t.Helper()
	s, err := ch.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen(%q): %v", ch.Topic(), err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// broadcast retries while a bounded backend reports a full queue.
func broadcast[T any](ctx context.Context, ch kvbus.Channel[T], v T) error {
	for {
		err := ch.Broadcast(ctx, v)
		if !errors.Is(err, kvbus.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func testNoReplay(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	ch := mustChannel(t, e, uniqueName(t), kvbus.ChannelOptions[string]{})
	ctx := context.Background()

	if err := ch.Broadcast(ctx, "early"); err != nil {
		t.Fatalf("Broadcast without listeners: %v", err)
	}
	s := listen(t, ch)
	if err := ch.Broadcast(ctx, "late"); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, s); got != "late" {
		t.Fatalf("first event = %q, want %q", got, "late")
	}
}

func testFanOut(t *testing.T, f Factory, producers, consumers int) {
	const perProducer = 40
	e, _ := newEngine(t, f)
	topic := uniqueName(t)
	ch := mustChannel(t, e, topic, kvbus.ChannelOptions[Event]{})

	subs := make([]kvbus.Subscription[Event], consumers)
	for i := range subs {
		subs[i] = listen(t, ch)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			// each producer uses its own handle
			h, err := kvbus.NewChannel[Event](e, topic, kvbus.ChannelOptions[Event]{})
			if err != nil {
				t.Error(err)
				return
			}
			for i := 0; i < perProducer; i++ {
				if err := broadcast(ctx, h, Event{Producer: p, Seq: i}); err != nil {
					t.Errorf("producer %d: %v", p, err)
					return
				}
			}
		}(p)
	}

	results := make([]error, consumers)
	for c, s := range subs {
		wg.Add(1)
		go func(c int, s kvbus.Subscription[Event]) {
			defer wg.Done()
			results[c] = consumeAll(ctx, s, producers, perProducer)
		}(c, s)
	}
	wg.Wait()

	for c, err := range results {
		if err != nil {
			t.Fatalf("consumer %d: %v", c, err)
		}
	}
}

// consumeAll reads producers*perProducer events and checks that each
// producer's events arrive in the order they were sent.
func consumeAll(ctx context.Context, s kvbus.Subscription[Event], producers, perProducer int) error {
	next := make([]int, producers)
	for n := 0; n < producers*perProducer; n++ {
		ev, err := s.Recv(ctx)
		if err != nil {
			return fmt.Errorf("after %d events: %w", n, err)
		}
		if ev.Producer < 0 || ev.Producer >= producers {
			return fmt.Errorf("unknown producer %d", ev.Producer)
		}
		if ev.Seq != next[ev.Producer] {
			return fmt.Errorf("producer %d: got seq %d, want %d", ev.Producer, ev.Seq, next[ev.Producer])
		}
		next[ev.Producer]++
	}
	return nil
}

func testSharedTopic(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	topic := uniqueName(t)
	a := mustChannel(t, e, topic, kvbus.ChannelOptions[string]{})
	b := mustChannel(t, e, topic, kvbus.ChannelOptions[string]{})
	s := listen(t, b)
	if err := a.Broadcast(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, s); got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func testDistinctTopics(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	a := mustChannel(t, e, uniqueName(t), kvbus.ChannelOptions[string]{})
	b := mustChannel(t, e, uniqueName(t), kvbus.ChannelOptions[string]{})
	sb := listen(t, b)
	ctx := context.Background()
	if err := a.Broadcast(ctx, "for-a"); err != nil {
		t.Fatal(err)
	}
	if err := b.Broadcast(ctx, "for-b"); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, sb); got != "for-b" {
		t.Fatalf("topic b received %q", got)
	}
}

func testDecodeFailure(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	topic := uniqueName(t)
	typed := mustChannel(t, e, topic, kvbus.ChannelOptions[int]{})
	raw := mustChannel(t, e, topic, kvbus.ChannelOptions[[]byte]{Codec: codec.Bytes{}})
	s := listen(t, typed)
	ctx := context.Background()

	if err := raw.Broadcast(ctx, []byte{0xff}); err != nil {
		t.Fatal(err)
	}
	if err := typed.Broadcast(ctx, 42); err != nil {
		t.Fatal(err)
	}

	rctx, cancel := context.WithTimeout(ctx, recvTimeout)
	defer cancel()
	if _, err := s.Recv(rctx); !kvbus.IsKind(err, kvbus.KindEncoding) {
		t.Fatalf("Recv on garbage: %v, want encoding error", err)
	}
	if got := recv(t, s); got != 42 {
		t.Fatalf("Recv after garbage = %d, want 42", got)
	}
}

// Each subscription owns the bytes it receives.
func testIndependentDelivery(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	ch := mustChannel(t, e, uniqueName(t), kvbus.ChannelOptions[[]byte]{Codec: codec.Bytes{}})
	s1 := listen(t, ch)
	s2 := listen(t, ch)

	payload := []byte("abc")
	if err := ch.Broadcast(context.Background(), payload); err != nil {
		t.Fatal(err)
	}
	payload[0] = 'P'

	got1 := recv(t, s1)
	got1[0] = 'X'
	if got2 := recv(t, s2); string(got2) != "abc" {
		t.Fatalf("second subscription received %q", got2)
	}
}

func testEvents(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	ch := mustChannel(t, e, uniqueName(t), kvbus.ChannelOptions[string]{})
	s := listen(t, ch)
	ctx, cancel := context.WithTimeout(context.Background(), recvTimeout)
	defer cancel()

	want := []string{"a", "b", "c"}
	for _, v := range want {
		if err := ch.Broadcast(ctx, v); err != nil {
			t.Fatal(err)
		}
	}
	var got []string
	for v, err := range s.Events(ctx) {
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		got = append(got, v)
		if len(got) == len(want) {
			break
		}
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func testRecvContext(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	ch := mustChannel(t, e, uniqueName(t), kvbus.ChannelOptions[string]{})
	s := listen(t, ch)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv on idle topic: %v", err)
	}
	// the subscription survives a cancelled wait
	if err := ch.Broadcast(context.Background(), "after"); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, s); got != "after" {
		t.Fatalf("got %q", got)
	}
}

func testCloseSubscription(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	ch := mustChannel(t, e, uniqueName(t), kvbus.ChannelOptions[string]{})
	s := listen(t, ch)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Recv(context.Background()); !errors.Is(err, kvbus.ErrSubscriptionClosed) {
		t.Fatalf("Recv after Close: %v", err)
	}
	if err := ch.Broadcast(context.Background(), "nobody"); err != nil {
		t.Fatalf("Broadcast after last listener left: %v", err)
	}
}

func testCloseEngine(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	ch := mustChannel(t, e, uniqueName(t), kvbus.ChannelOptions[string]{})
	s := listen(t, ch)

	done := make(chan error, 1)
	go func() {
		_, err := s.Recv(context.Background())
		done <- err
	}()
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Engine.Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, kvbus.ErrSubscriptionClosed) {
			t.Fatalf("Recv after engine close: %v", err)
		}
	case <-time.After(recvTimeout):
		t.Fatal("Recv did not return after engine close")
	}
}
