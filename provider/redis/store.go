// Package redis implements the provider contracts on top of go-redis.
// One pooled client is shared by every store and bus of an engine.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/kvbus/provider"
)

// Store maps provider operations onto single redis commands, so each of them
// is atomic on the server:
//
//	Get     -> GET key
//	GetDel  -> GETDEL key             (redis >= 6.2)
//	Set     -> SET key value PX ttl
//	Replace -> SET key value XX GET PX ttl|KEEPTTL  (redis >= 7.0)
type Store struct {
	rdb goredis.UniversalClient
}

var _ pr.Store = (*Store)(nil)

func NewStore(client goredis.UniversalClient) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Store{rdb: client}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return b, true, nil
}

func (s *Store) GetDel(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.GetDel(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: %w: %v", pr.ErrAccess, pr.ErrInvalidTTL, ttl)
	}
	return wrap(s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *Store) Replace(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	args := goredis.SetArgs{Mode: "XX", Get: true}
	if ttl > 0 {
		args.TTL = ttl
	} else {
		args.KeepTTL = true
	}
	prev, err := s.rdb.SetArgs(ctx, key, value, args).Result()
	if err == goredis.Nil {
		return nil, false, nil // no live entry; nothing written
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return []byte(prev), true, nil
}

// Close is a no-op: the client is owned by the engine.
func (s *Store) Close(context.Context) error { return nil }
