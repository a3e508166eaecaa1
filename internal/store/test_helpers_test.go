package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seed writes value samples for topic, one per offset from t0.
func seed(t *testing.T, s *Store, topic string, samples map[time.Duration]float64) {
	t.Helper()
	ms := make([]Measurement, 0, len(samples))
	for offset, v := range samples {
		ms = append(ms, Measurement{Topic: topic, Timestamp: t0.Add(offset), Value: v})
	}
	require.NoError(t, s.WriteMeasurements(context.Background(), ms))
}
