// Package kvbus provides two backend-agnostic building blocks: a typed
// key-value cache with expiring entries and a typed publish/subscribe channel.
// Application code is written against Cache and Channel; the backend is picked
// by Config when the Engine is built.
//
// Components:
//   - Engine: built once from Config; owns backend stores; hands out handles.
//   - Cache[K, V]: Get / Pop / Put / Replace with TTL semantics.
//   - Channel[T]: Broadcast / Listen with fan-out (multicast, not a work queue).
//   - Codec[V]: (de)serializes keys, values and events <-> []byte (CBOR default).
//   - Provider: byte store and byte bus implemented by the local and redis
//     backends.
//
// Backends:
//
//	local  - one mutex-guarded map per cache name, expired entries dropped
//	         when observed; per-topic ring of queue_size slots, a broadcast
//	         fails with ErrQueueFull instead of blocking on a slow consumer.
//	redis  - GET / GETDEL / SET PX / SET XX GET (PX|KEEPTTL) on prefix+name+key;
//	         PUBLISH / SUBSCRIBE on prefix+topic. One pooled client per engine.
//
// Usage:
//
//	cfg, _ := kvbus.ParseConfig(yamlBytes)
//	eng, _ := kvbus.NewEngine(ctx, cfg, kvbus.Options{})
//	defer eng.Close(ctx)
//
//	users, _ := kvbus.NewCache[string, User](eng, "users", kvbus.CacheOptions[string, User]{})
//	_ = users.Put(ctx, "u:1", u, time.Minute)
//	old, ok, _ := users.Replace(ctx, "u:1", u2, kvbus.KeepTTL)
//
//	events, _ := kvbus.NewChannel[Event](eng, "events", kvbus.ChannelOptions[Event]{})
//	sub, _ := events.Listen(ctx)
//	for ev, err := range sub.Events(ctx) { ... }
package kvbus
