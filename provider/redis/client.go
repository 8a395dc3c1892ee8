package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/kvbus/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

const defaultPingTimeout = 5 * time.Second

// Dial parses a redis:// or rediss:// connection string (pool parameters such
// as pool_size and pool_timeout are accepted as query arguments) and verifies
// the server answers PING before returning the pooled client.
func Dial(ctx context.Context, connectionString string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("redis provider: parse connection string: %w", err)
	}
	client := goredis.NewClient(opts)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPingTimeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis provider: ping %s: %w", opts.Addr, wrap(err))
	}
	return client, nil
}

// wrap classifies a go-redis failure: server error replies are access faults,
// everything else (dial, pool, I/O, cancellation) is a transport failure.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %w", pr.ErrAccess, err)
	}
	return fmt.Errorf("%w: %w", pr.ErrUnavailable, err)
}
