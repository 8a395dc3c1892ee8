// Package sloghooks logs kvbus hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/kvbus"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ExpiredEvery      uint64
	RejectedEvery     uint64
	DecodeFailedEvery uint64
	// Optional name/topic redactor. nil logs names as-is; see SHA256.
	Redact func(string) string
	// LogSubscriptions enables debug records for Listen/Close.
	LogSubscriptions bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	expiredCtr  atomic.Uint64
	rejectedCtr atomic.Uint64
	decodeCtr   atomic.Uint64
}

var _ kvbus.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

// SHA256 is a redactor that keeps a 16 hex character SHA-256 prefix.
func SHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func (h *Hooks) redact(s string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(s)
	}
	return s
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) EntryExpired(name string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("kvbus.entry_expired",
		"cache", h.redact(name))
}

func (h *Hooks) BroadcastRejected(topic string, err error) {
	if h.l == nil || !sample(h.opts.RejectedEvery, &h.rejectedCtr) {
		return
	}
	h.l.Warn("kvbus.broadcast_rejected",
		"topic", h.redact(topic),
		"err", err)
}

func (h *Hooks) EventDecodeFailed(topic string, err error) {
	if h.l == nil || !sample(h.opts.DecodeFailedEvery, &h.decodeCtr) {
		return
	}
	h.l.Warn("kvbus.event_decode_failed",
		"topic", h.redact(topic),
		"err", err)
}

func (h *Hooks) SubscriptionOpened(topic string) {
	if h.l == nil || !h.opts.LogSubscriptions {
		return
	}
	h.l.Debug("kvbus.subscription_opened", "topic", h.redact(topic))
}

func (h *Hooks) SubscriptionClosed(topic string) {
	if h.l == nil || !h.opts.LogSubscriptions {
		return
	}
	h.l.Debug("kvbus.subscription_closed", "topic", h.redact(topic))
}
