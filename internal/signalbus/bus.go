// Package signalbus implements the pub/sub signal bus: the single
// mechanism every subsystem (test cases, suites, the runner, services,
// device controllers) uses to communicate lifecycle, diagnostic, and
// data events to report sinks and the service manager.
//
// Delivery is synchronous and single-threaded in the sender's call
// context: a Send call invokes every matching receiver inline, in
// registration order, before it returns.
package signalbus

import (
	"fmt"
	"runtime/debug"
	"sync"

	"devtester/internal/logging"
)

// Payload is the set of keyword fields carried by one delivery. The sender
// is passed to each Receiver as its own argument and is not duplicated here.
type Payload map[string]interface{}

// Receiver is called once per matching Send. A receiver that panics is
// recovered by the bus, logged as a diagnostic, and never prevents later
// receivers in the same Send from running.
type Receiver func(sender interface{}, payload Payload) interface{}

// subscription is one registered receiver, optionally bound to a specific
// sender via identity equality (the ANY sentinel when sender is nil).
type subscription struct {
	id uint64
	fn Receiver
	sender interface{} // nil means ANY
	weak bool
	weakFn *weakHandle // set iff weak
}

// weakHandle indirects through a pointer so a weakly-connected receiver
// can be marked dead without the bus itself keeping it reachable. Go has
// no first-class weak references, so the owner drops its subscription by
// calling Expire, and the bus prunes expired handles lazily on the next
// Send — observably the same as a garbage-collected weak ref being
// skipped and pruned.
type weakHandle struct {
	mu sync.Mutex
	expired bool
}

// Expire marks h's subscription dead; the next Send to that signal prunes it.
func (h *weakHandle) Expire() {
	h.mu.Lock()
	h.expired = true
	h.mu.Unlock()
}

func (h *weakHandle) isExpired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expired
}

// Bus is a named collection of signals, each an ordered list of
// subscribers delivered to in registration order.
type Bus struct {
	mu sync.Mutex
	nextID uint64
	signals map[string][]*subscription
	logger logging.Logger
}

// New creates an empty Bus. logger receives a diagnostic entry whenever a
// receiver panics; it may be nil.
func New(logger logging.Logger) *Bus {
	return &Bus{signals: make(map[string][]*subscription), logger: logger}
}

// Handle identifies one Connect call so it can be passed to Disconnect.
type Handle struct {
	name string
	id uint64
	weak *weakHandle
}

// Weak returns the WeakHandle backing a weak connection, or nil for a
// strong one. Long-lived subscribers (report sinks, the service manager)
// never call this; they connect with weak=false and are dropped
// explicitly in the runner's reverse-order teardown.
func (h Handle) Weak() *weakHandle { return h.weak }

// Connect registers fn to be invoked by Send(name, sender, ...) calls.
// If sender is non-nil, fn is only invoked for Sends whose sender is
// identical (==) to it. A nil sender means ANY: it matches every Send to
// name regardless of sender, and binding one subscription to a specific
// sender never restricts any other ANY-bound subscription on the same
// signal. If weak is true, the caller must retain the returned Handle and
// call Handle.Weak().Expire when it should no longer receive deliveries
// (see weakHandle doc).
func (b *Bus) Connect(name string, sender interface{}, weak bool, fn Receiver) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, fn: fn, sender: sender, weak: weak}
	h := Handle{name: name, id: sub.id}
	if weak {
		sub.weakFn = &weakHandle{}
		h.weak = sub.weakFn
	}
	b.signals[name] = append(b.signals[name], sub)
	return h
}

// Disconnect removes exactly one subscription previously returned by
// Connect. Disconnecting an already-disconnected handle is a no-op.
func (b *Bus) Disconnect(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.signals[h.name]
	for i, s := range subs {
		if s.id == h.id {
			b.signals[h.name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Delivery carries one receiver's return value from a Send call.
type Delivery struct {
	ReturnValue interface{}
}

// Send delivers payload to every receiver connected to name whose sender
// filter matches sender (identity-equal, or ANY). Receivers run inline, in
// registration order; a panicking receiver is recovered, logged as a
// diagnostic, and does not stop later receivers, nor does it propagate to
// the caller. Return values are collected in delivery order.
func (b *Bus) Send(name string, sender interface{}, payload Payload) []Delivery {
	b.mu.Lock()
	subs := append([]*subscription(nil), b.signals[name]...)
	b.mu.Unlock()

	var deliveries []Delivery
	expired := map[uint64]bool{}

	for _, s := range subs {
		if s.weak && s.weakFn.isExpired() {
			expired[s.id] = true
			continue
		}
		if s.sender != nil && s.sender != sender {
			continue
		}
		deliveries = append(deliveries, b.invoke(s, name, sender, payload))
	}

	if len(expired) > 0 {
		// Prune by id against the current table, not the pre-delivery
		// snapshot: a receiver may have connected new subscriptions on this
		// same signal while it ran, and those must survive.
		b.mu.Lock()
		var live []*subscription
		for _, s := range b.signals[name] {
			if !expired[s.id] {
				live = append(live, s)
			}
		}
		b.signals[name] = live
		b.mu.Unlock()
	}

	return deliveries
}

// invoke calls a single receiver, recovering and logging any panic so it
// never escapes Send.
func (b *Bus) invoke(s *subscription, name string, sender interface{}, payload Payload) (d Delivery) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("signal %q: receiver panicked: %v\n%s", name, r, debug.Stack())
			if b.logger != nil {
				b.logger.Log(logging.LevelDiagnostic, timeNow(), msg)
			}
		}
	}()
	d.ReturnValue = s.fn(sender, payload)
	return d
}

// SubscriberCount returns the number of live subscriptions on name; it
// exists for tests asserting the round-trip property "Connect/Disconnect
// returns the bus to its prior observable state".
func (b *Bus) SubscriberCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signals[name])
}
