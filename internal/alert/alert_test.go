package alert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/testutil"
)

func TestLog_TriggerAllocatesZeroBasedIDs(t *testing.T) {
	l := NewLog()

	a := l.Trigger("Low voltage: 355.0V", testutil.Epoch, "furnace-1", nil)
	b := l.Trigger("High voltage: 402.0V", testutil.Epoch, "furnace-1", nil)

	assert.Equal(t, "alert-0", a.ID)
	assert.Equal(t, "alert-1", b.ID)
	assert.Equal(t, StatusPending, a.Status)
	assert.True(t, a.Pending())
	assert.Equal(t, 2, l.Len())
}

func TestLog_TriggerPublishesCreated(t *testing.T) {
	l := NewLog()
	var got []Notification
	l.Stream(func(n Notification) { got = append(got, n) })

	a := l.Trigger("msg", testutil.Epoch, "furnace-1", nil)

	require.Len(t, got, 1)
	assert.Equal(t, NotifyCreated, got[0].Type)
	assert.Equal(t, a.ID, got[0].Record.ID)
}

func TestLog_AcknowledgeReplacesSlot(t *testing.T) {
	l := NewLog()
	pending := l.Trigger("msg", testutil.Epoch, "furnace-1", nil)
	var got []Notification
	l.Stream(func(n Notification) { got = append(got, n) })

	acked := pending.Acknowledge()

	assert.Equal(t, StatusAcknowledged, acked.Status)
	assert.Equal(t, pending.ID, acked.ID)
	assert.Equal(t, pending.Message, acked.Message)
	assert.Equal(t, pending.Timestamp, acked.Timestamp)
	assert.Equal(t, StatusPending, pending.Status, "held value must stay frozen")

	stored, ok := l.Find(pending.ID)
	require.True(t, ok)
	assert.Equal(t, StatusAcknowledged, stored.Status)

	require.Len(t, got, 1)
	assert.Equal(t, NotifyAcknowledged, got[0].Type)
}

func TestLog_AcknowledgeTwiceIsNoOp(t *testing.T) {
	l := NewLog()
	pending := l.Trigger("msg", testutil.Epoch, "furnace-1", nil)
	count := 0
	l.Stream(func(n Notification) {
		if n.Type == NotifyAcknowledged {
			count++
		}
	})

	first, ok := l.Acknowledge(pending.ID)
	require.True(t, ok)
	second, ok := l.Acknowledge(pending.ID)
	require.True(t, ok)
	pending.Acknowledge()

	assert.Equal(t, 1, count)
	assert.Equal(t, first, second)
	assert.Equal(t, StatusPending, pending.Status)
}

func TestLog_AcknowledgeUnknown(t *testing.T) {
	l := NewLog()

	_, ok := l.Acknowledge("alert-7")

	assert.False(t, ok)
}

func TestAlert_AcknowledgeDetached(t *testing.T) {
	a := Alert{ID: "x", Status: StatusPending}

	assert.Equal(t, a, a.Acknowledge())
}

func TestLog_Predicates(t *testing.T) {
	l := NewLog()
	l.Trigger("a", testutil.Epoch, "furnace-1", nil)
	b := l.Trigger("b", testutil.Epoch, "furnace-2", nil)
	l.Trigger("c", testutil.Epoch, "furnace-1", nil)
	b.Acknowledge()

	assert.Len(t, l.All(), 3)
	assert.Len(t, l.All(BySubject("furnace-1")), 2)
	assert.Len(t, l.All(Pending), 2)
	assert.Len(t, l.All(Acknowledged), 1)
	assert.Len(t, l.All(BySubject("furnace-2"), Pending), 0)
	assert.Len(t, l.All(BySubject("ladle")), 0)
}

func TestLog_CancelStopsDelivery(t *testing.T) {
	l := NewLog()
	count := 0
	sub := l.Stream(func(Notification) { count++ })

	l.Trigger("a", testutil.Epoch, "", nil)
	sub.Cancel()
	sub.Cancel()
	l.Trigger("b", testutil.Epoch, "", nil)

	assert.Equal(t, 1, count)
}

func TestAlert_MarshalJSON(t *testing.T) {
	l := NewLog()
	ev := ir.NewEvent("ev-1", testutil.Epoch, map[string]any{"machine": "furnace-1"}, []string{"critical"})
	a := l.Trigger("Critical event", testutil.Epoch.Add(time.Second), "furnace-1", &ev)

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "alert-0", decoded["id"])
	assert.Equal(t, "pending", decoded["status"])
	assert.Equal(t, "furnace-1", decoded["subject"])
	source := decoded["source"].(map[string]any)
	assert.Equal(t, "ev-1", source["id"])
}
