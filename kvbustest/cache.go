package kvbustest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/kvbus"
	"github.com/unkn0wn-root/kvbus/codec"
)

type compositeKey struct {
	Tenant string
	ID     int
	Tags   map[string]string
}

// RunCacheTests runs the cache contract against engines built by f.
func RunCacheTests(t *testing.T, f Factory) {
	t.Run("GetNone", func(t *testing.T) { testGetNone(t, f) })
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, f) })
	t.Run("PutGetSharedName", func(t *testing.T) { testPutGetSharedName(t, f) })
	t.Run("DistinctNamesIsolated", func(t *testing.T) { testDistinctNamesIsolated(t, f) })
	t.Run("PutGetExpired", func(t *testing.T) { testPutGetExpired(t, f) })
	t.Run("PutOverwrites", func(t *testing.T) { testPutOverwrites(t, f) })
	t.Run("PopNone", func(t *testing.T) { testPopNone(t, f) })
	t.Run("PutPop", func(t *testing.T) { testPutPop(t, f) })
	t.Run("PutPopExpired", func(t *testing.T) { testPutPopExpired(t, f) })
	t.Run("ReplaceNone", func(t *testing.T) { testReplaceNone(t, f) })
	t.Run("ReplaceKeepsDeadline", func(t *testing.T) { testReplaceKeepsDeadline(t, f) })
	t.Run("ReplaceWithTTL", func(t *testing.T) { testReplaceWithTTL(t, f) })
	t.Run("ReplaceExpired", func(t *testing.T) { testReplaceExpired(t, f) })
	t.Run("ConcurrentReplace", func(t *testing.T) { testConcurrentReplace(t, f) })
	t.Run("CompositeKeys", func(t *testing.T) { testCompositeKeys(t, f) })
	t.Run("InvalidTTL", func(t *testing.T) { testInvalidTTL(t, f) })
	t.Run("CorruptValueIsEncodingError", func(t *testing.T) { testCorruptValue(t, f) })
	t.Run("GetResultIsCopy", func(t *testing.T) { testGetResultIsCopy(t, f) })
}

func stringCache(t *testing.T, e *kvbus.Engine, name string) kvbus.Cache[string, string] {
	return mustCache(t, e, name, kvbus.CacheOptions[string, string]{})
}

func expectGet[K comparable](t *testing.T, c kvbus.Cache[K, string], key K, want string, wantOK bool) {
	t.Helper()
	got, ok, err := c.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%v): %v", key, err)
	}
	if ok != wantOK || got != want {
		t.Fatalf("Get(%v) = %q, %v; want %q, %v", key, got, ok, want, wantOK)
	}
}

func testGetNone(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	expectGet(t, c, "unknown", "", false)
}

func testPutGet(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	if err := c.Put(context.Background(), "key", "expected", 32*time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	expectGet(t, c, "key", "expected", true)
}

func testPutGetSharedName(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	name := uniqueName(t)
	c1 := stringCache(t, e, name)
	c2 := stringCache(t, e, name)
	if err := c1.Put(context.Background(), "key", "expected", 32*time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	expectGet(t, c2, "key", "expected", true)
}

func testDistinctNamesIsolated(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	a := stringCache(t, e, uniqueName(t))
	b := stringCache(t, e, uniqueName(t))
	if err := a.Put(context.Background(), "key", "in-a", time.Minute); err != nil {
		t.Fatal(err)
	}
	expectGet(t, b, "key", "", false)
}

func testPutGetExpired(t *testing.T, f Factory) {
	e, advance := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	if err := c.Put(context.Background(), "key", "value", time.Second); err != nil {
		t.Fatal(err)
	}
	advance(1500 * time.Millisecond)
	expectGet(t, c, "key", "", false)
	if _, ok, err := c.Pop(context.Background(), "key"); err != nil || ok {
		t.Fatalf("Pop after expiry: ok=%v err=%v", ok, err)
	}
}

func testPutOverwrites(t *testing.T, f Factory) {
	e, advance := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	ctx := context.Background()
	_ = c.Put(ctx, "key", "v1", time.Second)
	if err := c.Put(ctx, "key", "v2", time.Minute); err != nil {
		t.Fatal(err)
	}
	advance(2 * time.Second)
	expectGet(t, c, "key", "v2", true)
}

func testPopNone(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	if v, ok, err := c.Pop(context.Background(), "unknown"); err != nil || ok {
		t.Fatalf("Pop = %q, %v, %v", v, ok, err)
	}
}

func testPutPop(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	ctx := context.Background()
	_ = c.Put(ctx, "key", "expected", 32*time.Second)

	v, ok, err := c.Pop(ctx, "key")
	if err != nil || !ok || v != "expected" {
		t.Fatalf("Pop = %q, %v, %v", v, ok, err)
	}
	expectGet(t, c, "key", "", false)
	if _, ok, _ := c.Pop(ctx, "key"); ok {
		t.Fatalf("second Pop must miss")
	}
}

func testPutPopExpired(t *testing.T, f Factory) {
	e, advance := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	_ = c.Put(context.Background(), "key", "value", time.Second)
	advance(1500 * time.Millisecond)
	if _, ok, err := c.Pop(context.Background(), "key"); err != nil || ok {
		t.Fatalf("Pop after expiry: ok=%v err=%v", ok, err)
	}
}

func testReplaceNone(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	old, ok, err := c.Replace(context.Background(), "unknown", "value", kvbus.KeepTTL)
	if err != nil || ok || old != "" {
		t.Fatalf("Replace on missing = %q, %v, %v", old, ok, err)
	}
	expectGet(t, c, "unknown", "", false)
}

func testReplaceKeepsDeadline(t *testing.T, f Factory) {
	e, advance := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	ctx := context.Background()
	_ = c.Put(ctx, "key", "expected", 4*time.Second)
	advance(2 * time.Second)

	old, ok, err := c.Replace(ctx, "key", "expected2", kvbus.KeepTTL)
	if err != nil || !ok || old != "expected" {
		t.Fatalf("Replace = %q, %v, %v", old, ok, err)
	}
	expectGet(t, c, "key", "expected2", true)

	advance(1 * time.Second) // 1s left on the first deadline
	expectGet(t, c, "key", "expected2", true)

	advance(1500 * time.Millisecond) // past the first deadline
	expectGet(t, c, "key", "", false)
}

func testReplaceWithTTL(t *testing.T, f Factory) {
	e, advance := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	ctx := context.Background()
	_ = c.Put(ctx, "key", "v1", 2*time.Second)
	advance(time.Second)

	old, ok, err := c.Replace(ctx, "key", "v2", 10*time.Second)
	if err != nil || !ok || old != "v1" {
		t.Fatalf("Replace = %q, %v, %v", old, ok, err)
	}
	advance(3 * time.Second) // past the first deadline
	expectGet(t, c, "key", "v2", true)
}

func testReplaceExpired(t *testing.T, f Factory) {
	e, advance := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	ctx := context.Background()
	_ = c.Put(ctx, "key", "value1", time.Second)
	advance(1500 * time.Millisecond)

	old, ok, err := c.Replace(ctx, "key", "value2", kvbus.KeepTTL)
	if err != nil || ok || old != "" {
		t.Fatalf("Replace on expired = %q, %v, %v", old, ok, err)
	}
	expectGet(t, c, "key", "", false)
}

// No two concurrent replaces may claim the same overwritten value.
func testConcurrentReplace(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	c := mustCache(t, e, uniqueName(t), kvbus.CacheOptions[string, int]{})
	ctx := context.Background()
	if err := c.Put(ctx, "counter", 0, time.Minute); err != nil {
		t.Fatal(err)
	}

	const n = 50
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		prevs = make(map[int]int, n)
	)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, ok, err := c.Replace(ctx, "counter", i, kvbus.KeepTTL)
			if err != nil || !ok {
				t.Errorf("Replace(%d): ok=%v err=%v", i, ok, err)
				return
			}
			mu.Lock()
			prevs[p]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	final, ok, err := c.Get(ctx, "counter")
	if err != nil || !ok {
		t.Fatalf("final Get: ok=%v err=%v", ok, err)
	}
	for p, cnt := range prevs {
		if cnt > 1 {
			t.Fatalf("value %d reported as replaced %d times", p, cnt)
		}
	}
	if len(prevs) != n {
		t.Fatalf("got %d distinct previous values, want %d", len(prevs), n)
	}
	if _, dup := prevs[final]; dup {
		t.Fatalf("final value %d was also reported as overwritten", final)
	}
}

func testCompositeKeys(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	ck := mustCache(t, e, uniqueName(t), kvbus.CacheOptions[compositeKeyID, string]{})
	ctx := context.Background()
	k := compositeKeyID{Tenant: "acme", ID: 7}
	if err := ck.Put(ctx, k, "seven", time.Minute); err != nil {
		t.Fatal(err)
	}
	expectGet(t, ck, compositeKeyID{Tenant: "acme", ID: 7}, "seven", true)
	expectGet(t, ck, compositeKeyID{Tenant: "acme", ID: 8}, "", false)

	// map-bearing keys are not comparable in Go; exercise them through the
	// deterministic codec directly to pin the encoding the cache relies on.
	kc := codec.MustCBOR[compositeKey](true)
	a, _ := kc.Encode(compositeKey{Tenant: "t", ID: 1, Tags: map[string]string{"x": "1", "y": "2", "z": "3"}})
	b, _ := kc.Encode(compositeKey{Tenant: "t", ID: 1, Tags: map[string]string{"z": "3", "y": "2", "x": "1"}})
	if string(a) != string(b) {
		t.Fatalf("deterministic key encoding differs")
	}
}

type compositeKeyID struct {
	Tenant string
	ID     int
}

func testInvalidTTL(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	c := stringCache(t, e, uniqueName(t))
	err := c.Put(context.Background(), "key", "v", 0)
	if !errors.Is(err, kvbus.ErrInvalidTTL) || !kvbus.IsKind(err, kvbus.KindValueAccess) {
		t.Fatalf("Put(ttl=0) err=%v", err)
	}
	expectGet(t, c, "key", "", false)
}

// A value that does not decode is an Encoding error, never a miss.
func testCorruptValue(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	name := uniqueName(t)
	raw := mustCache(t, e, name, kvbus.CacheOptions[string, []byte]{ValueCodec: codec.Bytes{}})
	typed := mustCache(t, e, name, kvbus.CacheOptions[string, int]{})
	ctx := context.Background()

	if err := raw.Put(ctx, "key", []byte{0xff}, time.Minute); err != nil {
		t.Fatal(err)
	}
	_, ok, err := typed.Get(ctx, "key")
	if ok || !kvbus.IsKind(err, kvbus.KindEncoding) {
		t.Fatalf("Get on corrupt value: ok=%v err=%v", ok, err)
	}
	var kerr *kvbus.Error
	if !errors.As(err, &kerr) || kerr.Op != "get" || kerr.Name != name {
		t.Fatalf("unexpected error shape: %#v", err)
	}
	// corruption does not delete the entry
	if v, ok, err := raw.Get(ctx, "key"); err != nil || !ok || len(v) != 1 {
		t.Fatalf("raw entry lost: %v %v %v", v, ok, err)
	}
}

// Mutating a value returned by Get must not change the cached entry.
func testGetResultIsCopy(t *testing.T, f Factory) {
	e, _ := newEngine(t, f)
	c := mustCache(t, e, uniqueName(t), kvbus.CacheOptions[string, []byte]{ValueCodec: codec.Bytes{}})
	ctx := context.Background()

	if err := c.Put(ctx, "key", []byte("hello"), time.Minute); err != nil {
		t.Fatal(err)
	}
	v, ok, err := c.Get(ctx, "key")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	v[0] = 'J'
	v, ok, err = c.Get(ctx, "key")
	if err != nil || !ok || string(v) != "hello" {
		t.Fatalf("entry changed through a Get result: %q ok=%v err=%v", v, ok, err)
	}
}
