package session

import (
	"log/slog"
	"time"

	"github.com/roach88/meltshop/internal/chronology"
	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/journal"
	"github.com/roach88/meltshop/internal/pubsub"
)

// Notification types published by the registry.
const (
	NotifyStarted   journal.NotificationType = "started"
	NotifyUpdated   journal.NotificationType = "updated"
	NotifyCompleted journal.NotificationType = "completed"
)

// Notification reports a session transition. Window is the window as of
// the transition; Session reads the live slot.
type Notification struct {
	Type    journal.NotificationType
	Session Session
	Window  chronology.Window
}

type record struct {
	id      string
	machine Machine
	window  chronology.Window
}

// Registry owns every melting session of a plant.
type Registry struct {
	clock   clock.Clock
	journal *journal.Journal[record]
}

// NewRegistry creates an empty registry. Ids start at m1.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{
		clock:   clk,
		journal: journal.New[record]("m", clock.NewSequence()),
	}
}

type startOptions struct {
	start time.Time
}

// StartOption customizes Start.
type StartOption func(*startOptions)

// WithStart backdates a new session to t instead of now.
func WithStart(t time.Time) StartOption {
	return func(o *startOptions) { o.start = t }
}

// Start returns the Active session of m, creating it when none exists.
//
// Start is idempotent: while a session is Active for m it is returned
// unchanged, options are ignored and nothing is published.
func (r *Registry) Start(m Machine, opts ...StartOption) Session {
	if s, ok := r.Active(m.Name()); ok {
		return s
	}
	o := startOptions{start: r.clock.Now()}
	for _, opt := range opts {
		opt(&o)
	}
	s := r.append(NotifyStarted, m, chronology.Window{Start: o.start})
	slog.Debug("session started", "session", s.id, "machine", m.Name(), "start", o.start)
	return s
}

// Record registers an already Completed session over [start, end] and
// publishes NotifyCompleted. A zero end is replaced with now.
func (r *Registry) Record(m Machine, start, end time.Time) Session {
	if end.IsZero() {
		end = r.clock.Now()
	}
	s := r.append(NotifyCompleted, m, chronology.Window{Start: start, End: end})
	slog.Debug("session recorded", "session", s.id, "machine", m.Name())
	return s
}

func (r *Registry) append(typ journal.NotificationType, m Machine, w chronology.Window) Session {
	rec := r.journal.AppendAs(typ, func(id string) record {
		return record{id: id, machine: m, window: w}
	})
	return Session{id: rec.id, reg: r}
}

// Active returns the Active session of the named machine.
func (r *Registry) Active(machine string) (Session, bool) {
	for _, s := range r.ByMachine(machine) {
		if s.Active() {
			return s, true
		}
	}
	return Session{}, false
}

// All returns every session in creation order.
func (r *Registry) All() []Session {
	return r.collect(nil)
}

// Completed returns every Completed session in creation order.
func (r *Registry) Completed() []Session {
	return r.collect(func(rec record) bool { return !rec.window.Open() })
}

// ByMachine returns every session of the named machine, in any state.
func (r *Registry) ByMachine(name string) []Session {
	return r.collect(func(rec record) bool { return rec.machine.Name() == name })
}

// Find returns the session with the given id.
func (r *Registry) Find(id string) (Session, bool) {
	if _, ok := r.journal.Find(id); !ok {
		return Session{}, false
	}
	return Session{id: id, reg: r}, true
}

// Stream subscribes cb to every future session notification.
func (r *Registry) Stream(cb func(Notification)) *pubsub.Subscription {
	return r.journal.Stream(func(n journal.Notification[record]) {
		cb(Notification{
			Type:    n.Type,
			Session: Session{id: n.Record.id, reg: r},
			Window:  n.Record.window,
		})
	})
}

func (r *Registry) collect(pred journal.Predicate[record]) []Session {
	var preds []journal.Predicate[record]
	if pred != nil {
		preds = append(preds, pred)
	}
	recs := r.journal.All(preds...)
	out := make([]Session, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Session{id: rec.id, reg: r})
	}
	return out
}
