package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StreamBatchLimit caps how many rows one ReadSince call returns.
const StreamBatchLimit = 100

// MinBucket is the smallest bucket width ReadBuckets accepts. Narrower
// steps are widened to it.
const MinBucket = time.Second

// ReadLatest returns the newest sample of topic.
// Returns ok == false, without error, when the topic has no samples.
func (s *Store) ReadLatest(ctx context.Context, topic string) (m Measurement, ok bool, err error) {
	var ts int64
	err = s.db.QueryRowContext(ctx, `
		SELECT ts, value FROM metrics
		WHERE topic = ?
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`, topic).Scan(&ts, &m.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return Measurement{}, false, nil
	}
	if err != nil {
		return Measurement{}, false, fmt.Errorf("read latest %s: %w", topic, err)
	}
	m.Topic = topic
	m.Timestamp = fromMillis(ts)
	return m, true, nil
}

// ReadRange returns raw samples of topic with start <= ts <= end.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadRange(ctx context.Context, topic string, start, end time.Time) ([]Measurement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, value FROM metrics
		WHERE topic = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, topic, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query range %s: %w", topic, err)
	}
	return scanMeasurements(rows, topic)
}

// ReadBuckets returns samples of topic averaged into step-wide buckets.
//
// Buckets are aligned to the unix epoch. The first bucket is the one that
// contains start, so samples slightly before start may be averaged in; end
// is inclusive. Each returned Measurement is stamped with its bucket start.
// step is truncated to whole seconds and floored at MinBucket.
func (s *Store) ReadBuckets(ctx context.Context, topic string, start, end time.Time, step time.Duration) ([]Measurement, error) {
	width := BucketWidth(step).Milliseconds()
	alignedStart := BucketStart(start, BucketWidth(step)).UnixMilli()

	rows, err := s.db.QueryContext(ctx, `
		SELECT (ts / ?) * ? AS bucket, AVG(value)
		FROM metrics
		WHERE topic = ? AND ts >= ? AND ts <= ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`, width, width, topic, alignedStart, end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query buckets %s: %w", topic, err)
	}
	return scanMeasurements(rows, topic)
}

// ReadSince returns up to limit samples of topic with ts > since, oldest
// first. A non-positive limit means StreamBatchLimit.
func (s *Store) ReadSince(ctx context.Context, topic string, since time.Time, limit int) ([]Measurement, error) {
	if limit <= 0 {
		limit = StreamBatchLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, value FROM metrics
		WHERE topic = ? AND ts > ?
		ORDER BY ts ASC, id ASC
		LIMIT ?
	`, topic, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query since %s: %w", topic, err)
	}
	return scanMeasurements(rows, topic)
}

// Topics lists every topic with at least one sample, sorted.
func (s *Store) Topics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT topic FROM metrics
		ORDER BY topic COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	topics := []string{}
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

// ReadRuns returns every recorded run, oldest first.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plant, started_at, finished_at FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Plant, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = fromMillis(started)
		if finished.Valid {
			r.FinishedAt = fromMillis(finished.Int64)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// BucketWidth normalizes a requested step the way ReadBuckets does.
func BucketWidth(step time.Duration) time.Duration {
	width := step.Truncate(time.Second)
	if width < MinBucket {
		return MinBucket
	}
	return width
}

// BucketStart returns the start of the epoch-aligned bucket of the given
// width containing t.
func BucketStart(t time.Time, width time.Duration) time.Time {
	w := width.Milliseconds()
	return fromMillis(floorDiv(t.UnixMilli(), w) * w)
}

func scanMeasurements(rows *sql.Rows, topic string) ([]Measurement, error) {
	defer rows.Close()

	out := []Measurement{}
	for rows.Next() {
		var (
			ts    int64
			value float64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		out = append(out, Measurement{Topic: topic, Timestamp: fromMillis(ts), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return out, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
