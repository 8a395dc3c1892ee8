package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/kvbus/provider"
)

func newMini(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestStoreSetGetDel(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMini(t)
	s, err := NewStore(rdb)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("miss expected, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", []byte{0x00, 0xfe, 'v'}, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("k"); ttl != 5*time.Second {
		t.Fatalf("ttl=%v", ttl)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != "\x00\xfev" {
		t.Fatalf("Get: %q ok=%v err=%v", v, ok, err)
	}
	v, ok, err = s.GetDel(ctx, "k")
	if err != nil || !ok || string(v) != "\x00\xfev" {
		t.Fatalf("GetDel: %q ok=%v err=%v", v, ok, err)
	}
	if mr.Exists("k") {
		t.Fatalf("GetDel left key behind")
	}
	if _, ok, err := s.GetDel(ctx, "k"); err != nil || ok {
		t.Fatalf("GetDel on missing: ok=%v err=%v", ok, err)
	}
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMini(t)
	s, _ := NewStore(rdb)

	_ = s.Set(ctx, "k", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expired key returned")
	}
}

func TestStoreReplace(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMini(t)
	s, _ := NewStore(rdb)

	if _, ok, err := s.Replace(ctx, "k", []byte("v"), pr.KeepTTL); err != nil || ok {
		t.Fatalf("replace on missing: ok=%v err=%v", ok, err)
	}
	if mr.Exists("k") {
		t.Fatalf("XX replace created a key")
	}

	_ = s.Set(ctx, "k", []byte("v1"), 10*time.Second)
	mr.FastForward(4 * time.Second)

	prev, ok, err := s.Replace(ctx, "k", []byte("v2"), pr.KeepTTL)
	if err != nil || !ok || string(prev) != "v1" {
		t.Fatalf("replace keep: prev=%q ok=%v err=%v", prev, ok, err)
	}
	if ttl := mr.TTL("k"); ttl != 6*time.Second {
		t.Fatalf("KEEPTTL not honoured, ttl=%v", ttl)
	}

	prev, ok, err = s.Replace(ctx, "k", []byte("v3"), 30*time.Second)
	if err != nil || !ok || string(prev) != "v2" {
		t.Fatalf("replace ttl: prev=%q ok=%v err=%v", prev, ok, err)
	}
	if ttl := mr.TTL("k"); ttl != 30*time.Second {
		t.Fatalf("new ttl not applied, ttl=%v", ttl)
	}
	if got, _ := mr.Get("k"); got != "v3" {
		t.Fatalf("value=%q", got)
	}
}

func TestStoreRejectsNonPositiveTTL(t *testing.T) {
	_, rdb := newMini(t)
	s, _ := NewStore(rdb)
	err := s.Set(context.Background(), "k", []byte("v"), 0)
	if !errors.Is(err, pr.ErrInvalidTTL) {
		t.Fatalf("err=%v", err)
	}
}

func TestStoreClassifiesErrorReplies(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMini(t)
	s, _ := NewStore(rdb)

	if _, err := mr.Lpush("list", "x"); err != nil {
		t.Fatal(err)
	}
	_, _, err := s.Get(ctx, "list")
	if !errors.Is(err, pr.ErrAccess) {
		t.Fatalf("WRONGTYPE should be an access fault, got %v", err)
	}

	mr.Close()
	_, _, err = s.Get(ctx, "k")
	if !errors.Is(err, pr.ErrUnavailable) {
		t.Fatalf("closed server should be unavailable, got %v", err)
	}
}

func TestNewStoreNilClient(t *testing.T) {
	if _, err := NewStore(nil); !errors.Is(err, ErrNilClient) {
		t.Fatalf("err=%v", err)
	}
	if _, err := NewBus(nil, "c", 0); !errors.Is(err, ErrNilClient) {
		t.Fatalf("err=%v", err)
	}
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := Dial(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	_ = c.Close()

	if _, err := Dial(context.Background(), "not-a-url"); err == nil {
		t.Fatalf("expected parse error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = Dial(ctx, "redis://127.0.0.1:1/0?max_retries=-1")
	if !errors.Is(err, pr.ErrUnavailable) {
		t.Fatalf("unreachable server: %v", err)
	}
}

func recv(t *testing.T, s pr.Subscription) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return string(p)
}

func TestBusFanOut(t *testing.T) {
	ctx := context.Background()
	_, rdb := newMini(t)
	b, _ := NewBus(rdb, "app:events", 0)
	if b.Channel() != "app:events" {
		t.Fatalf("channel=%q", b.Channel())
	}

	if err := b.Publish(ctx, []byte("dropped")); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}

	s1, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []string{"a", "b", "c"} {
		if err := b.Publish(ctx, []byte(e)); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range []pr.Subscription{s1, s2} {
		for _, want := range []string{"a", "b", "c"} {
			if got := recv(t, s); got != want {
				t.Fatalf("got %q want %q", got, want)
			}
		}
	}
	_ = b.Close(ctx)
	if _, err := s1.Next(ctx); !errors.Is(err, pr.ErrClosed) {
		t.Fatalf("after bus close: %v", err)
	}
	if _, err := b.Subscribe(ctx); !errors.Is(err, pr.ErrClosed) {
		t.Fatalf("subscribe after close: %v", err)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, rdb := newMini(t)
	b, _ := NewBus(rdb, "c", 4)
	s, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, pr.ErrClosed) {
		t.Fatalf("err=%v", err)
	}
}
