package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meltshop/internal/testutil"
)

func TestMemory_CurrentNoData(t *testing.T) {
	m := NewMemory("Voltage", "V")

	r, err := m.Current(context.Background())

	require.NoError(t, err)
	assert.True(t, r.IsZero())
	assert.Equal(t, "V", r.Unit)
}

func TestMemory_Current(t *testing.T) {
	m := NewMemory("Voltage", "V")
	m.Record(testutil.Epoch, 380)
	m.Record(testutil.Epoch.Add(time.Second), 340)

	r, err := m.Current(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 340.0, r.Value)
	assert.Equal(t, "Voltage", m.Name())
}

func TestMemory_MeasurementsMatchStoredSemantics(t *testing.T) {
	mem := NewMemory("Power factor", "cos(φ)")
	for i := 0; i < 6; i++ {
		mem.Record(testutil.Epoch.Add(time.Duration(i)*30*time.Second), float64(i))
	}
	r := Range{Start: testutil.Epoch.Add(10 * time.Second), End: testutil.Epoch.Add(2 * time.Minute)}

	raw, err := mem.Measurements(context.Background(), r, 0)
	require.NoError(t, err)
	assert.Len(t, raw, 4, "raw ranges do not align the start")

	buckets, err := mem.Measurements(context.Background(), r, time.Minute)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, testutil.Epoch, buckets[0].Timestamp)
	assert.Equal(t, 0.5, buckets[0].Value)
	assert.Equal(t, 2.5, buckets[1].Value)
	assert.Equal(t, 4.0, buckets[2].Value)
}

func TestMemory_MeasurementsEmpty(t *testing.T) {
	m := NewMemory("Voltage", "V")

	got, err := m.Measurements(context.Background(), Last(time.Hour, testutil.Epoch), time.Minute)

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemory_Stream(t *testing.T) {
	m := NewMemory("Voltage", "V")
	m.Record(testutil.Epoch, 1)
	c := &collector{}

	sub := m.Stream(testutil.Epoch, 5*time.Millisecond, c.add)
	defer sub.Cancel()

	m.Record(testutil.Epoch.Add(time.Second), 2)
	m.Record(testutil.Epoch.Add(2*time.Second), 3)

	require.Eventually(t, func() bool { return len(c.values()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{2, 3}, c.values())
}

func TestMemory_StreamNonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		m := NewMemory("Voltage", "V")
		c := &collector{}

		sub := m.Stream(testutil.Epoch, interval, c.add)
		m.Record(testutil.Epoch.Add(time.Second), 7)

		require.Eventually(t, func() bool { return len(c.values()) == 1 }, 2*time.Second, 5*time.Millisecond)
		sub.Cancel()
		assert.Equal(t, []float64{7}, c.values())
	}
}

func TestLast(t *testing.T) {
	r := Last(time.Second, testutil.Epoch)
	assert.Equal(t, testutil.Epoch.Add(-time.Second), r.Start)
	assert.Equal(t, testutil.Epoch, r.End)
}
