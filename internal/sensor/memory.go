package sensor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/pubsub"
	"github.com/roach88/meltshop/internal/store"
)

// Memory is an in-process Sensor over an ordered series of readings.
//
// It mirrors Stored semantics exactly (inclusive ranges, epoch-aligned
// buckets, exclusive stream cursor) so scenarios behave as they would
// against the metrics store.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Memory struct {
	name string
	unit string

	mu       sync.Mutex
	readings []ir.Reading
}

// NewMemory creates an empty in-memory sensor.
func NewMemory(name, unit string) *Memory {
	return &Memory{name: name, unit: unit}
}

// Name returns the display name.
func (m *Memory) Name() string { return m.name }

// Record appends a sample. Samples must arrive in timestamp order.
func (m *Memory) Record(ts time.Time, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, ir.Reading{Timestamp: ts, Value: value, Unit: m.unit})
}

// Current returns the newest sample or the zero Reading.
func (m *Memory) Current(context.Context) (ir.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.readings) == 0 {
		return ir.Reading{Unit: m.unit}, nil
	}
	return m.readings[len(m.readings)-1], nil
}

// Measurements returns samples in r, bucket-averaged when step > 0.
func (m *Memory) Measurements(_ context.Context, r Range, step time.Duration) ([]ir.Reading, error) {
	m.mu.Lock()
	series := slices.Clone(m.readings)
	m.mu.Unlock()

	if step <= 0 {
		out := []ir.Reading{}
		for _, rd := range series {
			if !rd.Timestamp.Before(r.Start) && !rd.Timestamp.After(r.End) {
				out = append(out, rd)
			}
		}
		return out, nil
	}

	width := store.BucketWidth(step)
	start := store.BucketStart(r.Start, width)
	out := []ir.Reading{}
	var (
		bucket time.Time
		sum    float64
		n      int
	)
	flush := func() {
		if n > 0 {
			out = append(out, ir.Reading{Timestamp: bucket, Value: sum / float64(n), Unit: m.unit})
		}
	}
	for _, rd := range series {
		if rd.Timestamp.Before(start) || rd.Timestamp.After(r.End) {
			continue
		}
		b := store.BucketStart(rd.Timestamp, width)
		if n > 0 && !b.Equal(bucket) {
			flush()
			sum, n = 0, 0
		}
		bucket = b
		sum += rd.Value
		n++
	}
	flush()
	return out, nil
}

// Stream polls the series every interval for samples newer than since.
func (m *Memory) Stream(since time.Time, interval time.Duration, cb func(ir.Reading)) *pubsub.Subscription {
	return poll(interval, since, func(_ context.Context, last time.Time) ([]ir.Reading, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		out := []ir.Reading{}
		for _, rd := range m.readings {
			if rd.Timestamp.After(last) {
				out = append(out, rd)
				if len(out) == store.StreamBatchLimit {
					break
				}
			}
		}
		return out, nil
	}, cb, m.name)
}
