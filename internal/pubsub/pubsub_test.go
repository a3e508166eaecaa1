package pubsub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type note struct {
	Type  string
	Value int
}

func TestBus_DeliversToSubscriber(t *testing.T) {
	bus := New[note]()
	var received []note
	bus.Stream(func(n note) { received = append(received, n) })

	bus.Publish(note{Type: "test", Value: 7})

	assert.Equal(t, []note{{Type: "test", Value: 7}}, received)
}

func TestBus_DeliversToAllSubscribersInOrder(t *testing.T) {
	bus := New[note]()
	var order []int
	bus.Stream(func(note) { order = append(order, 1) })
	bus.Stream(func(note) { order = append(order, 2) })
	bus.Stream(func(note) { order = append(order, 3) })

	bus.Publish(note{})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_CancelStopsDelivery(t *testing.T) {
	bus := New[note]()
	count := 0
	sub := bus.Stream(func(note) { count++ })

	bus.Publish(note{})
	sub.Cancel()
	bus.Publish(note{})

	assert.Equal(t, 1, count, "event was received after cancellation")
	assert.False(t, sub.Active())
}

func TestBus_CancelDoesNotAffectOthers(t *testing.T) {
	bus := New[note]()
	first, second := 0, 0
	sub1 := bus.Stream(func(note) { first++ })
	bus.Stream(func(note) { second++ })

	sub1.Cancel()
	bus.Publish(note{})

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, bus.Len())
}

func TestBus_CancelIsIdempotent(t *testing.T) {
	bus := New[note]()
	a := bus.Stream(func(note) {})
	bus.Stream(func(note) {})

	a.Cancel()
	a.Cancel()

	assert.Equal(t, 1, bus.Len())
}

func TestBus_CancelDuringPublishSkipsLaterSubscriber(t *testing.T) {
	bus := New[note]()
	var second *Subscription
	secondCalls := 0

	bus.Stream(func(note) { second.Cancel() })
	second = bus.Stream(func(note) { secondCalls++ })

	bus.Publish(note{})

	assert.Equal(t, 0, secondCalls)
}

func TestBus_SameCallbackTwiceIsTwoSubscriptions(t *testing.T) {
	bus := New[note]()
	count := 0
	cb := func(note) { count++ }
	a := bus.Stream(cb)
	bus.Stream(cb)

	a.Cancel()
	bus.Publish(note{})

	assert.Equal(t, 1, count)
}

func TestBus_NilSubscriptionCancel(t *testing.T) {
	var s *Subscription
	assert.NotPanics(t, s.Cancel)
	assert.False(t, s.Active())
}

func TestBus_ConcurrentCancel(t *testing.T) {
	bus := New[note]()
	subs := make([]*Subscription, 50)
	for i := range subs {
		subs[i] = bus.Stream(func(note) {})
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			s.Cancel()
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 0, bus.Len())
}

func TestNewSubscription_CancelRunsOnce(t *testing.T) {
	calls := 0
	sub := NewSubscription(func() { calls++ })

	assert.True(t, sub.Active())
	sub.Cancel()
	sub.Cancel()

	assert.False(t, sub.Active())
	assert.Equal(t, 1, calls)
}
