package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Kind: KindStep, Action: "start_session", Args: map[string]any{"machine": "f"}},
		{Seq: 2, Kind: KindNotify, Action: "session.started", Args: map[string]any{"id": "m1"}},
		{Seq: 3, Kind: KindStep, Action: "load", Args: map[string]any{"machine": "f", "amount": 5}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "load", Args: map[string]any{"amount": 5.0}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "session.started"}))

	err := assertTraceContains(trace, Assertion{Action: "load", Args: map[string]any{"amount": 6}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"start_session", "load"}}))
	assert.Error(t, assertTraceOrder(trace, Assertion{Actions: []string{"load", "start_session"}}))
	assert.Error(t, assertTraceOrder(trace, Assertion{Actions: []string{"stop_session"}}))
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "load", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "dispense", Count: 0}))
	assert.Error(t, assertTraceCount(trace, Assertion{Action: "load", Count: 2}))
}

func TestSubsetMismatch_Normalizes(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	actual := map[string]any{
		"weight": 150.0,
		"count":  3,
		"at":     ts,
		"labels": []any{"a", "b"},
		"extra":  true,
	}
	assert.Empty(t, subsetMismatch(actual, map[string]any{
		"weight": 150,
		"count":  3.0,
		"at":     "2024-03-01T08:00:00Z",
		"labels": []any{"a", "b"},
	}))
	assert.Contains(t, subsetMismatch(actual, map[string]any{"missing": 1}), `field "missing" missing`)
	assert.Empty(t, subsetMismatch(nil, nil))
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{Type: "x", Expected: "a", Actual: "b", Trace: sampleTrace()[:1]}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: x")
	assert.Contains(t, msg, "[1] step start_session")
}
