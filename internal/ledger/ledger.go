// Package ledger implements the per-machine weight ledger: an append-only
// sequence of time-stamped weight samples that answers current,
// point-in-time and range questions.
//
// The ledger is the single source of truth for how much metal a machine
// holds. Nothing derived from it (session chronologies, totals) is stored;
// every answer is recomputed from the samples.
//
// INVARIANTS:
//   - Never empty: construction appends the initial sample
//   - Append-only: samples are never edited or removed
//   - Timestamps are non-decreasing as long as the clock is
//
// Ledgers are not safe for concurrent use. All mutation goes through the
// single-writer engine (see internal/engine).
package ledger

import (
	"slices"
	"time"

	"github.com/roach88/meltshop/internal/clock"
)

// Sample is one immutable (timestamp, weight) point.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Weight    float64   `json:"weight"`
}

// Totals is the load/dispense breakdown of a time range.
type Totals struct {
	Loaded    float64 `json:"loaded"`
	Dispensed float64 `json:"dispensed"`
}

// Ledger is the weight history of a single machine.
type Ledger struct {
	clock   clock.Clock
	initial float64
	samples []Sample
}

// New creates a ledger holding initial, stamped at clk.Now().
func New(initial float64, clk clock.Clock) *Ledger {
	return &Ledger{
		clock:   clk,
		initial: initial,
		samples: []Sample{{Timestamp: clk.Now(), Weight: initial}},
	}
}

// Load appends a sample with the weight raised by amount.
// Amounts are not validated; negative loads are recorded as given.
func (l *Ledger) Load(amount float64) Sample {
	return l.append(l.CurrentWeight() + amount)
}

// Dispense appends a sample with the weight lowered by amount.
// Over-dispensing is accepted and yields a negative weight.
func (l *Ledger) Dispense(amount float64) Sample {
	return l.append(l.CurrentWeight() - amount)
}

func (l *Ledger) append(weight float64) Sample {
	s := Sample{Timestamp: l.clock.Now(), Weight: weight}
	l.samples = append(l.samples, s)
	return s
}

// Initial returns the weight the ledger was created with.
func (l *Ledger) Initial() float64 {
	return l.initial
}

// CurrentWeight returns the weight of the last sample.
func (l *Ledger) CurrentWeight() float64 {
	return l.samples[len(l.samples)-1].Weight
}

// WeightAt returns the weight of the latest sample stamped at or before t.
// Queries that predate every sample return the initial weight.
func (l *Ledger) WeightAt(t time.Time) float64 {
	for i := len(l.samples) - 1; i >= 0; i-- {
		if !l.samples[i].Timestamp.After(t) {
			return l.samples[i].Weight
		}
	}
	return l.initial
}

// RangeTotals sums loaded and dispensed metal over [from, to).
//
// The running baseline starts at WeightAt(from); every later sample with
// timestamp before to contributes its delta from the previous weight.
// Samples stamped exactly at from are part of the baseline already. The
// result depends only on weight changes, not on how many samples realized
// a logical load or dispense.
func (l *Ledger) RangeTotals(from, to time.Time) Totals {
	var totals Totals
	prev := l.WeightAt(from)
	for _, s := range l.samples {
		if !s.Timestamp.After(from) || !s.Timestamp.Before(to) {
			continue
		}
		delta := s.Weight - prev
		if delta > 0 {
			totals.Loaded += delta
		} else {
			totals.Dispensed -= delta
		}
		prev = s.Weight
	}
	return totals
}

// Samples returns a copy of the sample history in append order.
func (l *Ledger) Samples() []Sample {
	return slices.Clone(l.samples)
}

// Len returns the number of samples, including the initial one.
func (l *Ledger) Len() int {
	return len(l.samples)
}
