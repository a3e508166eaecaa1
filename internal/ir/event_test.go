package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_CopiesProperties(t *testing.T) {
	props := map[string]any{"machine": "icht1"}
	ev := NewEvent("ev-1", time.Now(), props, nil)

	props["machine"] = "changed"

	got, ok := ev.StringProperty("machine")
	require.True(t, ok)
	assert.Equal(t, "icht1", got)
}

func TestEvent_PropertiesReturnsCopy(t *testing.T) {
	ev := NewEvent("ev-1", time.Now(), map[string]any{"k": 1}, nil)

	ev.Properties()["k"] = 2

	v, _ := ev.Property("k")
	assert.Equal(t, 1, v)
}

func TestEvent_LabelsReturnsCopy(t *testing.T) {
	ev := NewEvent("ev-1", time.Now(), nil, []string{"a", "b"})

	labels := ev.Labels()
	labels[0] = "z"

	assert.Equal(t, []string{"a", "b"}, ev.Labels())
}

func TestEvent_LabelsDeduplicatedAndNormalized(t *testing.T) {
	ev := NewEvent("ev-1", time.Now(), nil, []string{"cafe\u0301", "caf\u00e9", "x", "x"})

	assert.Equal(t, []string{"caf\u00e9", "x"}, ev.Labels())
	assert.True(t, ev.HasLabel("cafe\u0301"))
	assert.False(t, ev.HasLabel("y"))
}

func TestEvent_NilPropertiesBecomeEmpty(t *testing.T) {
	ev := NewEvent("ev-1", time.Now(), nil, nil)
	assert.NotNil(t, ev.Properties())
	assert.Empty(t, ev.Labels())
}

func TestEvent_MarshalJSON(t *testing.T) {
	ts := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	ev := NewEvent("ev-7", ts, map[string]any{"v": 1}, nil)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"ev-7","timestamp":"2024-03-01T08:00:00Z","properties":{"v":1},"labels":[]}`, string(data))
}

func TestContext_Reading(t *testing.T) {
	ctx := SensorContext("icht1", Snapshot{"voltage": {Value: 340}})

	r, ok := ctx.Reading("voltage")
	require.True(t, ok)
	assert.Equal(t, 340.0, r.Value)

	_, ok = ctx.Reading("cosphi")
	assert.False(t, ok)
}

func TestContext_EventKindHasNoReadings(t *testing.T) {
	ev := NewEvent("ev-1", time.Now(), nil, nil)
	ctx := EventContext(&ev)

	assert.Equal(t, ContextEvent, ctx.Kind)
	_, ok := ctx.Reading("voltage")
	assert.False(t, ok)
}

func TestContextKind_String(t *testing.T) {
	assert.Equal(t, "sensor", ContextSensor.String())
	assert.Equal(t, "event", ContextEvent.String())
	assert.Equal(t, "unknown(9)", ContextKind(9).String())
}

func TestReading_IsZero(t *testing.T) {
	assert.True(t, Reading{Unit: "V"}.IsZero())
	assert.False(t, Reading{Timestamp: time.Now(), Unit: "V"}.IsZero())
}
