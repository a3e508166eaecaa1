// Package alert implements the alert log.
//
// Alerts are stored by value in an append-only journal with zero-based ids
// (alert-0, alert-1, ...). Acknowledgment never mutates a handed-out Alert:
// it swaps the stored slot for an Acknowledged copy and publishes
// NotifyAcknowledged. Callers holding the earlier value keep a frozen
// Pending snapshot and must re-fetch with Find or All to observe the change.
package alert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/journal"
	"github.com/roach88/meltshop/internal/pubsub"
)

// Status is the alert lifecycle variant.
type Status int

const (
	// StatusPending alerts wait for an operator.
	StatusPending Status = iota + 1
	// StatusAcknowledged alerts have been seen.
	StatusAcknowledged
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAcknowledged:
		return "acknowledged"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Notification types published by the alert log.
const (
	NotifyCreated      = journal.NotifyCreated
	NotifyAcknowledged journal.NotificationType = "acknowledged"
)

// Notification reports a new or acknowledged alert.
type Notification = journal.Notification[Alert]

// Alert is an immutable alert record.
type Alert struct {
	ID        string
	Message   string
	Timestamp time.Time
	Subject   string
	Source    *ir.Event
	Status    Status

	log *Log
}

// Pending reports whether the alert still awaits acknowledgment.
func (a Alert) Pending() bool { return a.Status == StatusPending }

// Acknowledge acknowledges the stored alert with a's id and returns the
// Acknowledged copy. a itself is left untouched. An Alert that did not come
// from a Log is returned unchanged.
func (a Alert) Acknowledge() Alert {
	if a.log == nil {
		return a
	}
	acked, _ := a.log.Acknowledge(a.ID)
	return acked
}

type alertJSON struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject,omitempty"`
	Source    *ir.Event `json:"source,omitempty"`
	Status    Status    `json:"status"`
}

// MarshalJSON renders the alert for the HTTP surface and forwarders.
func (a Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(alertJSON{
		ID:        a.ID,
		Message:   a.Message,
		Timestamp: a.Timestamp,
		Subject:   a.Subject,
		Source:    a.Source,
		Status:    a.Status,
	})
}

// Log is the plant alert log.
type Log struct {
	journal *journal.Journal[Alert]
}

// NewLog creates an empty alert log.
func NewLog() *Log {
	return &Log{journal: journal.New[Alert]("alert-", clock.NewSequenceAt(-1))}
}

// Trigger appends a Pending alert and publishes NotifyCreated.
// source may be nil for alerts raised from sensor snapshots.
func (l *Log) Trigger(message string, ts time.Time, subject string, source *ir.Event) Alert {
	a := l.journal.Append(func(id string) Alert {
		return Alert{
			ID:        id,
			Message:   message,
			Timestamp: ts,
			Subject:   subject,
			Source:    source,
			Status:    StatusPending,
			log:       l,
		}
	})
	slog.Info("alert triggered", "alert", a.ID, "subject", subject, "message", message)
	return a
}

// Acknowledge swaps the alert with id for its Acknowledged copy.
//
// The first acknowledgment publishes NotifyAcknowledged. Acknowledging an
// already Acknowledged alert returns the stored value and publishes nothing.
// ok is false for unknown ids.
func (l *Log) Acknowledge(id string) (Alert, bool) {
	a, replaced, ok := l.journal.Replace(id, NotifyAcknowledged, func(a Alert) (Alert, bool) {
		if a.Status == StatusAcknowledged {
			return a, false
		}
		a.Status = StatusAcknowledged
		return a, true
	})
	if replaced {
		slog.Info("alert acknowledged", "alert", id)
	}
	return a, ok
}

// All returns alerts matching every predicate, in trigger order.
func (l *Log) All(preds ...journal.Predicate[Alert]) []Alert {
	return l.journal.All(preds...)
}

// Find returns the current value of the alert with id.
func (l *Log) Find(id string) (Alert, bool) {
	return l.journal.Find(id)
}

// Stream subscribes cb to every future alert notification.
func (l *Log) Stream(cb func(Notification)) *pubsub.Subscription {
	return l.journal.Stream(cb)
}

// Len returns the number of alerts ever triggered.
func (l *Log) Len() int {
	return l.journal.Len()
}

// BySubject selects alerts raised for subject.
func BySubject(subject string) journal.Predicate[Alert] {
	return func(a Alert) bool { return a.Subject == subject }
}

// Pending selects alerts awaiting acknowledgment.
func Pending(a Alert) bool { return a.Status == StatusPending }

// Acknowledged selects acknowledged alerts.
func Acknowledged(a Alert) bool { return a.Status == StatusAcknowledged }
