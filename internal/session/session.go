package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/meltshop/internal/chronology"
	"github.com/roach88/meltshop/internal/ledger"
)

// Machine is what the registry needs from a melting machine.
type Machine interface {
	Name() string
	Chronology() *ledger.Ledger
}

// State is the lifecycle variant of a session.
type State int

const (
	// StateActive sessions have no end yet.
	StateActive State = iota + 1
	// StateCompleted sessions have an end.
	StateCompleted
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Patch corrects a session window. Nil fields keep their current value.
type Patch struct {
	Start *time.Time
	End   *time.Time
}

// Session is a handle on one registry entry.
type Session struct {
	id  string
	reg *Registry
}

// ID returns the registry-assigned id (m1, m2, ...).
func (s Session) ID() string { return s.id }

// IsZero reports whether s is the zero handle returned on lookup misses.
func (s Session) IsZero() bool { return s.reg == nil }

func (s Session) record() record {
	rec, _ := s.reg.journal.Find(s.id)
	return rec
}

// Machine returns the machine the session melts on.
func (s Session) Machine() Machine { return s.record().machine }

// MachineName returns the owning machine's name.
func (s Session) MachineName() string { return s.record().machine.Name() }

// Window returns the current session window.
func (s Session) Window() chronology.Window { return s.record().window }

// State reports whether the session is Active or Completed.
func (s Session) State() State {
	if s.Window().Open() {
		return StateActive
	}
	return StateCompleted
}

// Active reports whether the session has no end yet.
func (s Session) Active() bool { return s.State() == StateActive }

// Stop completes an Active session at the current time and publishes
// NotifyCompleted. Stopping a Completed session leaves it unchanged.
func (s Session) Stop() Session {
	now := s.reg.clock.Now()
	s.reg.journal.Replace(s.id, NotifyCompleted, func(rec record) (record, bool) {
		if !rec.window.Open() {
			return rec, false
		}
		rec.window.End = now
		return rec, true
	})
	return s
}

// Update applies p to the session window.
//
// Setting End on an Active session is the Active→Completed transition and
// publishes NotifyCompleted. A zero End means the current time, as in
// Record. Any other patch, including an empty one or a correction of a
// Completed session, publishes NotifyUpdated.
func (s Session) Update(p Patch) Session {
	if p.End != nil && p.End.IsZero() {
		now := s.reg.clock.Now()
		p.End = &now
	}

	cur := s.record()
	next := cur.window
	if p.Start != nil {
		next.Start = *p.Start
	}
	if p.End != nil {
		next.End = *p.End
	}

	typ := NotifyUpdated
	if cur.window.Open() && !next.Open() {
		typ = NotifyCompleted
	}
	s.reg.journal.Replace(s.id, typ, func(rec record) (record, bool) {
		rec.window = next
		return rec, true
	})
	return s
}

// Chronology returns a live view of the machine ledger over the session
// window. The window is captured at call time.
func (s Session) Chronology() chronology.Chronology {
	rec := s.record()
	return chronology.New(rec.machine.Chronology(), rec.window, s.reg.clock)
}

type sessionJSON struct {
	ID      string              `json:"id"`
	Machine string              `json:"machine"`
	State   State               `json:"state"`
	Window  chronology.Window   `json:"window"`
	Totals  chronology.Snapshot `json:"chronology"`
}

// MarshalJSON renders the session with its current chronology snapshot.
func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		ID:      s.id,
		Machine: s.MachineName(),
		State:   s.State(),
		Window:  s.Window(),
		Totals:  s.Chronology().Snapshot(),
	})
}
