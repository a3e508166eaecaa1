package ir

import "fmt"

// ContextKind discriminates rule evaluation contexts.
type ContextKind int

const (
	// ContextSensor carries a periodic sensor snapshot for one machine.
	ContextSensor ContextKind = iota + 1
	// ContextEvent carries a reference to a newly created event.
	ContextEvent
)

// String returns the kind name used in logs.
func (k ContextKind) String() string {
	switch k {
	case ContextSensor:
		return "sensor"
	case ContextEvent:
		return "event"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Context is the tagged union handed to every rule.
//
// Exactly one payload is meaningful for a given Kind:
//   - ContextSensor: Subject (machine name) and Sensor
//   - ContextEvent: Event
//
// Rules must switch on Kind rather than probing payload fields.
type Context struct {
	Kind    ContextKind
	Subject string
	Sensor  Snapshot
	Event   *Event
}

// SensorContext builds a sensor-snapshot context for subject.
func SensorContext(subject string, snapshot Snapshot) Context {
	return Context{Kind: ContextSensor, Subject: subject, Sensor: snapshot}
}

// EventContext builds an event-reference context.
func EventContext(ev *Event) Context {
	return Context{Kind: ContextEvent, Event: ev}
}

// Reading returns a sensor reading from a sensor context. It reports false
// for event contexts and for sensors missing from the snapshot.
func (c Context) Reading(name string) (Reading, bool) {
	if c.Kind != ContextSensor {
		return Reading{}, false
	}
	r, ok := c.Sensor[name]
	return r, ok
}
