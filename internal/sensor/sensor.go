// Package sensor defines the Sensor capability machines read from and two
// implementations: Stored, backed by the SQLite metrics store, and Memory,
// an in-process series used by scenarios and tests.
//
// Current and Measurements run on the caller's goroutine and may block on
// I/O; their errors propagate wrapped. Stream polls on its own ticker
// goroutine, delivers every new sample since the previous poll in store
// order and skips (with a debug log) any poll that fails. Cancel halts
// future polls; a poll already in flight may still deliver.
package sensor

import (
	"context"
	"time"

	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/pubsub"
)

// Range is a closed time interval [Start, End].
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Last returns the range of length d ending at now.
func Last(d time.Duration, now time.Time) Range {
	return Range{Start: now.Add(-d), End: now}
}

// Sensor is a named measurement source.
type Sensor interface {
	// Name is the human-readable sensor name.
	Name() string
	// Current returns the newest reading, or the zero Reading with the
	// sensor unit when no data exists.
	Current(ctx context.Context) (ir.Reading, error)
	// Measurements returns readings in r, oldest first. A positive step
	// averages them into step-wide buckets.
	Measurements(ctx context.Context, r Range, step time.Duration) ([]ir.Reading, error)
	// Stream polls every interval for samples newer than since.
	Stream(since time.Time, interval time.Duration, cb func(ir.Reading)) *pubsub.Subscription
}

// Topic is the metrics-store topic for a machine sensor, e.g.
// Topic("furnace-1", "voltage") == "furnace-1/voltage".
func Topic(machine, key string) string {
	return machine + "/" + key
}
