// Package eventlog implements the plant event log.
//
// Create appends an immutable ir.Event (ids ev-1, ev-2, ...), publishes
// NotifyCreated to every subscriber and then evaluates the configured rules
// with an event context, all before returning. Rules therefore observe the
// event already stored, and alerts they raise are visible as soon as Create
// returns.
package eventlog

import (
	"log/slog"
	"time"

	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/journal"
	"github.com/roach88/meltshop/internal/pubsub"
)

// NotifyCreated is published for every new event.
const NotifyCreated = journal.NotifyCreated

// Notification reports a new event.
type Notification = journal.Notification[ir.Event]

// Evaluator consumes rule contexts. *rules.Rules satisfies it.
type Evaluator interface {
	Evaluate(ctx ir.Context)
}

// Log is the plant event log.
type Log struct {
	clock     clock.Clock
	evaluator Evaluator
	journal   *journal.Journal[ir.Event]
}

// NewLog creates an empty event log. eval may be nil when no rules apply.
func NewLog(clk clock.Clock, eval Evaluator) *Log {
	return &Log{
		clock:     clk,
		evaluator: eval,
		journal:   journal.New[ir.Event]("ev-", clock.NewSequence()),
	}
}

// Create records an event. A zero ts is stamped with the log clock.
func (l *Log) Create(ts time.Time, properties map[string]any, labels []string) ir.Event {
	if ts.IsZero() {
		ts = l.clock.Now()
	}
	ev := l.journal.Append(func(id string) ir.Event {
		return ir.NewEvent(id, ts, properties, labels)
	})
	slog.Debug("event created", "event", ev.ID(), "labels", ev.Labels())
	if l.evaluator != nil {
		l.evaluator.Evaluate(ir.EventContext(&ev))
	}
	return ev
}

// All returns events matching every predicate, in creation order.
func (l *Log) All(preds ...journal.Predicate[ir.Event]) []ir.Event {
	return l.journal.All(preds...)
}

// Find returns the event with id.
func (l *Log) Find(id string) (ir.Event, bool) {
	return l.journal.Find(id)
}

// Stream subscribes cb to every future event notification.
func (l *Log) Stream(cb func(Notification)) *pubsub.Subscription {
	return l.journal.Stream(cb)
}

// Len returns the number of events ever created.
func (l *Log) Len() int {
	return l.journal.Len()
}

// HasLabel selects events carrying label.
func HasLabel(label string) journal.Predicate[ir.Event] {
	return func(ev ir.Event) bool { return ev.HasLabel(label) }
}

// Since selects events stamped at or after t.
func Since(t time.Time) journal.Predicate[ir.Event] {
	return func(ev ir.Event) bool { return !ev.Timestamp().Before(t) }
}
