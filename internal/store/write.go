package store

import (
	"context"
	"fmt"
	"time"
)

// Measurement is one stored sensor sample.
type Measurement struct {
	Topic     string
	Timestamp time.Time
	Value     float64
}

// Run is one plant run.
type Run struct {
	ID         string
	Plant      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
}

// WriteMeasurement inserts a sample.
// Uses ON CONFLICT(topic, ts) DO NOTHING: re-ingesting the same sample is a
// no-op. Timestamps are truncated to milliseconds.
func (s *Store) WriteMeasurement(ctx context.Context, m Measurement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (topic, ts, value)
		VALUES (?, ?, ?)
		ON CONFLICT(topic, ts) DO NOTHING
	`, m.Topic, m.Timestamp.UnixMilli(), m.Value)
	if err != nil {
		return fmt.Errorf("write measurement: %w", err)
	}
	return nil
}

// WriteMeasurements inserts a batch of samples in one transaction.
// Either every sample is written or none is.
func (s *Store) WriteMeasurements(ctx context.Context, ms []Measurement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write measurements: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metrics (topic, ts, value)
		VALUES (?, ?, ?)
		ON CONFLICT(topic, ts) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write measurements: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range ms {
		if _, err := stmt.ExecContext(ctx, m.Topic, m.Timestamp.UnixMilli(), m.Value); err != nil {
			return fmt.Errorf("write measurements: insert %s: %w", m.Topic, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write measurements: commit: %w", err)
	}
	return nil
}

// WriteRun records the start of a plant run.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, plant, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.Plant, r.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun stamps the end of a run. Finishing twice keeps the first stamp.
func (s *Store) FinishRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?
		WHERE id = ? AND finished_at IS NULL
	`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
