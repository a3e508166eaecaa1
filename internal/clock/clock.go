// Package clock provides the two notions of time used across meltshop:
// a wall Clock for stamping samples and records, and a Sequence for
// allocating strictly increasing identifiers.
package clock

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock reports the current wall time.
//
// Every component that stamps a record takes a Clock instead of calling
// time.Now directly, so tests can drive time explicitly.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by time.Now.
type System struct{}

// Now returns the current local time.
func (System) Now() time.Time {
	return time.Now()
}

// Sequence is a monotonic counter used to generate record ids.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations),
// although the single-writer engine means only one goroutine normally
// calls Next.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence whose first Next returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence whose first Next returns start+1.
// A start of -1 yields zero-based ids.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next value and advances the sequence.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last value handed out without advancing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// Format renders a sequence value with a prefix, e.g. Format("m", 3) == "m3".
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%d", prefix, n)
}
