// Package pubsub provides the in-process notification bus shared by the
// session registry, the event log and the alert log.
//
// Delivery is synchronous: Publish invokes every live subscriber, in
// subscription order, before returning. Cancelling a subscription takes
// effect immediately, including for a publish already in progress, and
// never affects other subscribers.
package pubsub

import "sync"

// Bus fans notifications of type T out to subscribers.
//
// Thread-safety: the subscriber list is guarded by a mutex so Cancel may be
// called from any goroutine (e.g. a closing websocket). Callbacks run on
// the publishing goroutine, outside the lock.
type Bus[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []*Subscription
	cbs    map[uint64]func(T)
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{cbs: make(map[uint64]func(T))}
}

// Subscription is a handle returned by Stream.
type Subscription struct {
	id     uint64
	mu     sync.Mutex
	active bool
	cancel func(uint64)
}

// NewSubscription wraps cancel in a Subscription that is not tied to a Bus.
// Pollers use it so every stream in the plant is cancelled the same way.
// cancel runs at most once.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{active: true, cancel: func(uint64) { cancel() }}
}

// Cancel stops delivery permanently. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()
	s.cancel(s.id)
}

// Active reports whether the subscription still receives notifications.
func (s *Subscription) Active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stream registers cb for every future notification.
func (b *Bus[T]) Stream(cb func(T)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, active: true, cancel: b.remove}
	b.subs = append(b.subs, sub)
	b.cbs[sub.id] = cb
	return sub
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.cbs, id)
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers n to every live subscriber in subscription order.
func (b *Bus[T]) Publish(n T) {
	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		// Re-check under the bus lock: an earlier callback may have
		// cancelled this subscriber during the current publish.
		b.mu.Lock()
		cb, ok := b.cbs[s.id]
		b.mu.Unlock()
		if !ok {
			continue
		}
		cb(n)
	}
}

// Len returns the number of live subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
