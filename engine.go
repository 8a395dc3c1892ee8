package kvbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/kvbus/internal/keys"
	"github.com/unkn0wn-root/kvbus/internal/registry"
	pr "github.com/unkn0wn-root/kvbus/provider"
	"github.com/unkn0wn-root/kvbus/provider/local"
	rp "github.com/unkn0wn-root/kvbus/provider/redis"
)

// Engine is the long-lived handle produced from a Config. It owns the backend
// stores and hands out Cache and Channel handles via NewCache and NewChannel.
//
// The backend variant is fixed at construction; there is no reconfiguration.
// Exactly one of local/remote is non-nil.
type Engine struct {
	backend Backend
	log     Logger
	hooks   Hooks

	local  *localBackend
	remote *redisBackend

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

type localBackend struct {
	now       func() time.Time
	queueSize int
	stores    *registry.Registry[*local.Store]
	buses     *registry.Registry[*local.Bus]
}

type redisBackend struct {
	prefix      string
	rdb         goredis.UniversalClient
	closeClient bool
	bufSize     int
	store       *rp.Store
	buses       *registry.Registry[*rp.Bus]
}

// NewEngine validates cfg and builds the selected backend. For redis it dials
// Config.Redis.ConnectionString (unless Options.RedisClient is set) and
// verifies the server with PING.
func NewEngine(ctx context.Context, cfg Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		backend: cfg.Type,
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
	}

	switch cfg.Type {
	case BackendLocal:
		now := opts.Now
		if now == nil {
			now = time.Now
		}
		e.local = &localBackend{
			now:       now,
			queueSize: coalesce(cfg.Local.QueueSize, defaultQueueSize),
			stores:    registry.New[*local.Store](),
			buses:     registry.New[*local.Bus](),
		}
		e.log.Info("kvbus engine ready", Fields{"backend": cfg.Type, "queue_size": e.local.queueSize})

	case BackendRedis:
		rdb := opts.RedisClient
		closeClient := opts.CloseClient
		if rdb == nil {
			if cfg.Redis.ConnectionString == "" {
				return nil, fmt.Errorf("%w: redis connection_string is required", ErrInvalidConfig)
			}
			client, err := rp.Dial(ctx, cfg.Redis.ConnectionString)
			if err != nil {
				return nil, backendError("connect", cfg.Redis.Prefix, err)
			}
			rdb, closeClient = client, true
		}
		store, err := rp.NewStore(rdb)
		if err != nil {
			return nil, err
		}
		e.remote = &redisBackend{
			prefix:      cfg.Redis.Prefix,
			rdb:         rdb,
			closeClient: closeClient,
			bufSize:     opts.SubscriptionBuffer,
			store:       store,
			buses:       registry.New[*rp.Bus](),
		}
		e.log.Info("kvbus engine ready", Fields{"backend": cfg.Type, "prefix": cfg.Redis.Prefix})
	}
	return e, nil
}

// Backend reports the variant selected at construction.
func (e *Engine) Backend() Backend { return e.backend }

// store returns the backing store for a named cache and the namespace its
// keys are stored under.
func (e *Engine) store(name string) (pr.Store, string) {
	switch e.backend {
	case BackendLocal:
		s, created := e.local.stores.GetOrCreate(name, func() *local.Store {
			return local.NewStore(local.StoreOptions{
				Now:       e.local.now,
				OnExpired: func(string) { e.hooks.EntryExpired(name) },
			})
		})
		if created {
			e.log.Debug("local cache created", Fields{"name": name})
		}
		return s, ""
	case BackendRedis:
		return e.remote.store, keys.Namespace(e.remote.prefix, name)
	default:
		panic(fmt.Sprintf("kvbus: unknown backend %q", e.backend))
	}
}

// bus returns the backing bus for a topic.
func (e *Engine) bus(topic string) pr.Bus {
	switch e.backend {
	case BackendLocal:
		b, created := e.local.buses.GetOrCreate(topic, func() *local.Bus {
			b := local.NewBus(e.local.queueSize)
			if e.closed.Load() {
				_ = b.Close(context.Background())
			}
			return b
		})
		if created {
			e.log.Debug("local topic created", Fields{"topic": topic, "queue_size": e.local.queueSize})
		}
		return b
	case BackendRedis:
		b, created := e.remote.buses.GetOrCreate(topic, func() *rp.Bus {
			// NewBus only fails on a nil client, which NewEngine rules out.
			b, _ := rp.NewBus(e.remote.rdb, keys.Namespace(e.remote.prefix, topic), e.remote.bufSize)
			if e.closed.Load() {
				_ = b.Close(context.Background())
			}
			return b
		})
		if created {
			e.log.Debug("redis topic bound", Fields{"topic": topic, "channel": b.Channel()})
		}
		return b
	default:
		panic(fmt.Sprintf("kvbus: unknown backend %q", e.backend))
	}
}

// Close ends every subscription and, for redis, drains the connection pool
// when the engine owns the client. Handles must not be used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		var errs []error
		switch e.backend {
		case BackendLocal:
			e.local.buses.Range(func(_ string, b *local.Bus) {
				errs = append(errs, b.Close(ctx))
			})
		case BackendRedis:
			e.remote.buses.Range(func(topic string, b *rp.Bus) {
				if err := b.Close(ctx); err != nil {
					e.log.Warn("closing redis subscriptions failed", Fields{"topic": topic, "err": err})
					errs = append(errs, err)
				}
			})
			if e.remote.closeClient {
				if err := e.remote.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
					errs = append(errs, err)
				}
			}
		}
		e.closeErr = errors.Join(errs...)
		e.log.Info("kvbus engine closed", Fields{"backend": e.backend})
	})
	return e.closeErr
}
