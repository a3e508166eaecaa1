// Package journal implements the append-only record arena behind the event
// log and the alert log.
//
// A Journal owns a monotonic id sequence, an insertion-ordered slice of
// records stored by value, an id→slot index and a notification bus.
// Records are never removed. A slot may be replaced (e.g. an alert moving
// to its acknowledged variant); values handed out earlier are copies and
// stay frozen.
//
// INVARIANTS:
//   - ids are strictly increasing in append order
//   - Every append publishes exactly one notification
//   - A replacement publishes exactly one notification of the caller's type
//
// Journals are not safe for concurrent use; mutate them from the engine loop.
package journal

import (
	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/pubsub"
)

// NotificationType names a journal transition.
type NotificationType string

// NotifyCreated is published for every appended record.
const NotifyCreated NotificationType = "created"

// Notification is delivered to Stream subscribers.
type Notification[T any] struct {
	Type   NotificationType `json:"type"`
	Record T                `json:"record"`
}

// Predicate filters records in All.
type Predicate[T any] func(T) bool

// Journal is an append-only arena of T keyed by generated ids.
type Journal[T any] struct {
	prefix string
	seq    *clock.Sequence
	items  []T
	index  map[string]int
	bus    *pubsub.Bus[Notification[T]]
}

// New creates a journal whose ids are prefix followed by seq values.
func New[T any](prefix string, seq *clock.Sequence) *Journal[T] {
	return &Journal[T]{
		prefix: prefix,
		seq:    seq,
		index:  make(map[string]int),
		bus:    pubsub.New[Notification[T]](),
	}
}

// Append allocates the next id, stores build(id), publishes NotifyCreated
// and returns the stored record.
func (j *Journal[T]) Append(build func(id string) T) T {
	return j.AppendAs(NotifyCreated, build)
}

// AppendAs is Append with a caller-chosen notification type.
func (j *Journal[T]) AppendAs(typ NotificationType, build func(id string) T) T {
	id := clock.Format(j.prefix, j.seq.Next())
	rec := build(id)
	j.index[id] = len(j.items)
	j.items = append(j.items, rec)
	j.bus.Publish(Notification[T]{Type: typ, Record: rec})
	return rec
}

// Find returns the record stored under id.
func (j *Journal[T]) Find(id string) (T, bool) {
	i, ok := j.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return j.items[i], true
}

// All returns records matching every predicate, in insertion order.
// No predicates selects everything. The result is never nil.
func (j *Journal[T]) All(preds ...Predicate[T]) []T {
	out := make([]T, 0, len(j.items))
	for _, rec := range j.items {
		if matchAll(rec, preds) {
			out = append(out, rec)
		}
	}
	return out
}

func matchAll[T any](rec T, preds []Predicate[T]) bool {
	for _, p := range preds {
		if !p(rec) {
			return false
		}
	}
	return true
}

// Replace swaps the record at id for the value returned by next. When next
// reports false the slot is left alone and nothing is published. The
// returned record is whatever the slot holds afterwards; ok is false only
// for unknown ids.
func (j *Journal[T]) Replace(id string, typ NotificationType, next func(T) (T, bool)) (rec T, replaced bool, ok bool) {
	i, found := j.index[id]
	if !found {
		var zero T
		return zero, false, false
	}
	updated, change := next(j.items[i])
	if !change {
		return j.items[i], false, true
	}
	j.items[i] = updated
	j.bus.Publish(Notification[T]{Type: typ, Record: updated})
	return updated, true, true
}

// Stream subscribes cb to every future notification.
func (j *Journal[T]) Stream(cb func(Notification[T])) *pubsub.Subscription {
	return j.bus.Stream(cb)
}

// Len returns the number of stored records.
func (j *Journal[T]) Len() int {
	return len(j.items)
}
