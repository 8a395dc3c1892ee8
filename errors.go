package kvbus

import (
	"errors"
	"fmt"

	pr "github.com/unkn0wn-root/kvbus/provider"
)

// Kind classifies a failed operation. Every kind is terminal for the call
// that raised it; nothing is retried internally.
type Kind uint8

const (
	// KindConnection: the backend transport could not be reached or acquired
	// (dial, pool exhaustion, broken connection, full local queue).
	KindConnection Kind = iota + 1
	// KindValueAccess: local synchronization failure or a backend-reported
	// fault while accessing a value.
	KindValueAccess
	// KindEncoding: a key, value or event failed to serialize or deserialize.
	KindEncoding
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection failed"
	case KindValueAccess:
		return "value access failed"
	case KindEncoding:
		return "encoding failed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	// ErrQueueFull is wrapped by Broadcast on the local backend when a
	// subscription has not drained enough to make room.
	ErrQueueFull = pr.ErrQueueFull
	// ErrSubscriptionClosed is returned by Subscription.Recv once the
	// transport is closed. It ends the event sequence.
	ErrSubscriptionClosed = pr.ErrClosed
	// ErrInvalidTTL is wrapped by Put when ttl <= 0.
	ErrInvalidTTL = pr.ErrInvalidTTL
)

// Error is returned by every cache and channel operation that fails.
type Error struct {
	Kind Kind
	Op   string // get, pop, put, replace, broadcast, listen, recv
	Name string // cache name or topic
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("kvbus: %s %q: %s: %v", e.Op, e.Name, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func backendError(op, name string, err error) error {
	kind := KindConnection
	if errors.Is(err, pr.ErrAccess) {
		kind = KindValueAccess
	}
	return &Error{Kind: kind, Op: op, Name: name, Err: err}
}

func encodingError(op, name string, err error) error {
	return &Error{Kind: KindEncoding, Op: op, Name: name, Err: err}
}
