// Package local implements in-process backends: a mutex-guarded map with
// lazy expiry, and a fixed-capacity fan-out bus.
package local

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/kvbus/provider"
)

type entry struct {
	value  []byte
	expiry time.Time
}

// live reports whether the entry is still valid at now.
func (e entry) live(now time.Time) bool { return now.Before(e.expiry) }

// Store keeps entries in a single map guarded by one mutex.
// Expired entries are removed only when an operation observes them;
// there is no background sweep.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	now       func() time.Time
	onExpired func(key string)
}

var _ pr.Store = (*Store)(nil)

type StoreOptions struct {
	// Now returns the current time. nil => time.Now.
	Now func() time.Time
	// OnExpired is called (outside the lock) when an expired entry is purged.
	OnExpired func(key string)
}

func NewStore(opts StoreOptions) *Store {
	s := &Store{
		entries:   make(map[string]entry),
		now:       opts.Now,
		onExpired: opts.OnExpired,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	e, ok := s.entries[key]
	expired := ok && !e.live(s.now())
	if expired {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if expired {
		s.expired(key)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(e.value), true, nil
}

func (s *Store) GetDel(ctx context.Context, key string) ([]byte, bool, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	live := ok && e.live(s.now())
	s.mu.Unlock()

	if ok && !live {
		s.expired(key)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: %w: %v", pr.ErrAccess, pr.ErrInvalidTTL, ttl)
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key] = entry{value: bytes.Clone(value), expiry: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Replace keeps the previous absolute expiry when ttl <= 0; it is not
// refreshed relative to now.
func (s *Store) Replace(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	now := s.now()
	prev, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil, false, nil
	}
	if !prev.live(now) {
		delete(s.entries, key)
		s.mu.Unlock()
		s.expired(key)
		return nil, false, nil
	}
	expiry := prev.expiry
	if ttl > 0 {
		expiry = now.Add(ttl)
	}
	s.entries[key] = entry{value: bytes.Clone(value), expiry: expiry}
	s.mu.Unlock()
	return prev.value, true, nil
}

// Len returns the number of physically stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) expired(key string) {
	if s.onExpired != nil {
		s.onExpired(key)
	}
}

// checkCtx refuses to start an operation whose context is already done, so an
// abandoned call leaves the map untouched.
func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", pr.ErrAccess, err)
	}
	return nil
}
