// Package chronology derives melting-session views from a machine's weight
// ledger. A Chronology stores nothing but its window; every Snapshot is
// recomputed from the live ledger, so an in-progress session always reflects
// the current machine weight without any sync step.
package chronology

import (
	"time"

	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/ledger"
)

// Source is the ledger capability a chronology reads from.
type Source interface {
	WeightAt(t time.Time) float64
	RangeTotals(from, to time.Time) ledger.Totals
}

// Window bounds a chronology. A zero End means the window is still open.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitzero"`
}

// Open reports whether the window has no end yet.
func (w Window) Open() bool {
	return w.End.IsZero()
}

// Snapshot is the derived state of a window at one instant.
type Snapshot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end,omitzero"`
	Initial   float64   `json:"initial"`
	Weight    float64   `json:"weight"`
	Loaded    float64   `json:"loaded"`
	Dispensed float64   `json:"dispensed"`
}

// Chronology is a read-only projection of a Source over a Window.
type Chronology struct {
	source Source
	window Window
	clock  clock.Clock
}

// New binds source to window. clk supplies "now" for open windows.
func New(source Source, window Window, clk clock.Clock) Chronology {
	return Chronology{source: source, window: window, clock: clk}
}

// Window returns the bounds this chronology projects.
func (c Chronology) Window() Window {
	return c.window
}

// Snapshot evaluates the window at its end, or now while it is open.
func (c Chronology) Snapshot() Snapshot {
	at := c.window.End
	if at.IsZero() {
		at = c.clock.Now()
	}
	return c.SnapshotAt(at)
}

// SnapshotAt evaluates the window at an explicit instant.
func (c Chronology) SnapshotAt(at time.Time) Snapshot {
	totals := c.source.RangeTotals(c.window.Start, at)
	return Snapshot{
		Start:     c.window.Start,
		End:       c.window.End,
		Initial:   c.source.WeightAt(c.window.Start),
		Weight:    c.source.WeightAt(at),
		Loaded:    totals.Loaded,
		Dispensed: totals.Dispensed,
	}
}
