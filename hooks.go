package kvbus

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The engine calls them on hot paths; wrap slow sinks with hooks/async.
type Hooks interface {
	// A local cache purged an entry it found expired on access.
	EntryExpired(name string)

	// A local broadcast was refused because a subscriber lags a full queue.
	BroadcastRejected(topic string, err error)

	// A received event could not be decoded; the subscription continues.
	EventDecodeFailed(topic string, err error)

	SubscriptionOpened(topic string)
	SubscriptionClosed(topic string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) EntryExpired(string)             {}
func (NopHooks) BroadcastRejected(string, error) {}
func (NopHooks) EventDecodeFailed(string, error) {}
func (NopHooks) SubscriptionOpened(string)       {}
func (NopHooks) SubscriptionClosed(string)       {}
