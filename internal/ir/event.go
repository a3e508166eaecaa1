package ir

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Event is an immutable record in the plant event log.
//
// The zero Event is not valid; construct events with NewEvent. Properties is
// an opaque key/value payload owned by the producer, Labels classify the
// event for rule matching.
type Event struct {
	id         string
	timestamp  time.Time
	properties map[string]any
	labels     []string
}

// NewEvent builds an Event. Properties are copied so later mutation of the
// caller's map cannot leak into the log. Labels are NFC normalized and
// de-duplicated, keeping first occurrence order.
func NewEvent(id string, timestamp time.Time, properties map[string]any, labels []string) Event {
	props := maps.Clone(properties)
	if props == nil {
		props = map[string]any{}
	}
	return Event{
		id:         id,
		timestamp:  timestamp,
		properties: props,
		labels:     normalizeLabels(labels),
	}
}

// ID returns the log-assigned identifier.
func (e Event) ID() string { return e.id }

// Timestamp returns when the event occurred.
func (e Event) Timestamp() time.Time { return e.timestamp }

// Properties returns a copy of the event payload.
func (e Event) Properties() map[string]any { return maps.Clone(e.properties) }

// Property returns a single payload value.
func (e Event) Property(key string) (any, bool) {
	v, ok := e.properties[key]
	return v, ok
}

// StringProperty returns a payload value when it is a string.
func (e Event) StringProperty(key string) (string, bool) {
	v, ok := e.properties[key].(string)
	return v, ok
}

// Labels returns a copy of the event labels.
func (e Event) Labels() []string { return slices.Clone(e.labels) }

// HasLabel reports whether the event carries label (compared after NFC
// normalization).
func (e Event) HasLabel(label string) bool {
	return slices.Contains(e.labels, norm.NFC.String(label))
}

type eventJSON struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties"`
	Labels     []string       `json:"labels"`
}

// MarshalJSON renders the event for the HTTP surface and forwarders.
func (e Event) MarshalJSON() ([]byte, error) {
	labels := e.labels
	if labels == nil {
		labels = []string{}
	}
	return json.Marshal(eventJSON{
		ID:         e.id,
		Timestamp:  e.timestamp,
		Properties: e.properties,
		Labels:     labels,
	})
}

func normalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		n := norm.NFC.String(l)
		if slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}
