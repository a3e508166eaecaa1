package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/pubsub"
	"github.com/roach88/meltshop/internal/store"
)

// Reader is the part of *store.Store a Stored sensor reads through.
type Reader interface {
	ReadLatest(ctx context.Context, topic string) (store.Measurement, bool, error)
	ReadRange(ctx context.Context, topic string, start, end time.Time) ([]store.Measurement, error)
	ReadBuckets(ctx context.Context, topic string, start, end time.Time, step time.Duration) ([]store.Measurement, error)
	ReadSince(ctx context.Context, topic string, since time.Time, limit int) ([]store.Measurement, error)
}

// Stored is a Sensor backed by one metrics-store topic.
type Stored struct {
	reader Reader
	topic  string
	name   string
	unit   string
}

// NewStored creates a sensor reading topic from r.
func NewStored(r Reader, topic, displayName, unit string) *Stored {
	return &Stored{reader: r, topic: topic, name: displayName, unit: unit}
}

// Name returns the display name.
func (s *Stored) Name() string { return s.name }

// Topic returns the metrics-store topic.
func (s *Stored) Topic() string { return s.topic }

// Unit returns the measurement unit.
func (s *Stored) Unit() string { return s.unit }

// Current returns the newest sample or the zero Reading.
func (s *Stored) Current(ctx context.Context) (ir.Reading, error) {
	m, ok, err := s.reader.ReadLatest(ctx, s.topic)
	if err != nil {
		return ir.Reading{}, fmt.Errorf("sensor %s: current: %w", s.topic, err)
	}
	if !ok {
		return ir.Reading{Unit: s.unit}, nil
	}
	return s.reading(m), nil
}

// Measurements returns raw samples, or bucket averages when step > 0.
func (s *Stored) Measurements(ctx context.Context, r Range, step time.Duration) ([]ir.Reading, error) {
	var (
		ms  []store.Measurement
		err error
	)
	if step > 0 {
		ms, err = s.reader.ReadBuckets(ctx, s.topic, r.Start, r.End, step)
	} else {
		ms, err = s.reader.ReadRange(ctx, s.topic, r.Start, r.End)
	}
	if err != nil {
		return nil, fmt.Errorf("sensor %s: measurements: %w", s.topic, err)
	}
	out := make([]ir.Reading, 0, len(ms))
	for _, m := range ms {
		out = append(out, s.reading(m))
	}
	return out, nil
}

// Stream polls the store every interval for samples newer than the last
// one delivered, at most store.StreamBatchLimit per poll.
func (s *Stored) Stream(since time.Time, interval time.Duration, cb func(ir.Reading)) *pubsub.Subscription {
	return poll(interval, since, func(ctx context.Context, last time.Time) ([]ir.Reading, error) {
		ms, err := s.reader.ReadSince(ctx, s.topic, last, store.StreamBatchLimit)
		if err != nil {
			return nil, err
		}
		out := make([]ir.Reading, 0, len(ms))
		for _, m := range ms {
			out = append(out, s.reading(m))
		}
		return out, nil
	}, cb, s.topic)
}

func (s *Stored) reading(m store.Measurement) ir.Reading {
	return ir.Reading{Timestamp: m.Timestamp, Value: m.Value, Unit: s.unit}
}

type fetchFunc func(ctx context.Context, since time.Time) ([]ir.Reading, error)

// MinPollInterval is the shortest stream polling period. Non-positive
// intervals are raised to it.
const MinPollInterval = time.Millisecond

// poll runs fetch on a ticker until the returned subscription is cancelled.
func poll(interval time.Duration, since time.Time, fetch fetchFunc, cb func(ir.Reading), label string) *pubsub.Subscription {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	sub := pubsub.NewSubscription(func() { once.Do(cancel) })

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := since
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			readings, err := fetch(ctx, last)
			if err != nil {
				slog.Debug("poll failed", "sensor", label, "error", err)
				continue
			}
			for _, r := range readings {
				cb(r)
				last = r.Timestamp
			}
		}
	}()

	return sub
}
