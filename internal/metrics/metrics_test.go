package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/eventlog"
	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/ledger"
	"github.com/roach88/meltshop/internal/session"
	clocktest "github.com/roach88/meltshop/internal/testutil"
)

type nopEvaluator struct{}

func (nopEvaluator) Evaluate(ir.Context) {}

type fakeMachine struct {
	name string
	l    *ledger.Ledger
}

func (f fakeMachine) Name() string               { return f.name }
func (f fakeMachine) Chronology() *ledger.Ledger { return f.l }

func TestAttach_CountsNotifications(t *testing.T) {
	clk := clocktest.NewManualClock(time.Time{})
	alerts := alert.NewLog()
	events := eventlog.NewLog(clk, nopEvaluator{})
	sessions := session.NewRegistry(clk)

	m := New()
	subs := m.Attach(alerts, events, sessions)

	a := alerts.Trigger("Low voltage: 355.0V", clk.Now(), "furnace-1", nil)
	alerts.Trigger("Low power factor: 0.75", clk.Now(), "furnace-1", nil)
	alerts.Acknowledge(a.ID)
	alerts.Acknowledge(a.ID)
	events.Create(time.Time{}, nil, []string{"info"})

	furnace := fakeMachine{name: "furnace-1", l: ledger.New(0, clk)}
	s := sessions.Start(furnace)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	s.Stop()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsTriggered.WithLabelValues("furnace-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsAcknowledged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsCompleted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionsActive))

	for _, sub := range subs {
		sub.Cancel()
	}
	events.Create(time.Time{}, nil, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsCreated))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	m := New()
	m.SetWeight("furnace-1", 42)
	m.Forwarded(true)

	wrapped := m.WrapHandler("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `meltshop_machine_weight{machine="furnace-1"} 42`)
	assert.Contains(t, string(body), `meltshop_forwarded_total{result="ok"} 1`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/metrics", "200")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetWeight("x", 1)
	m.Forwarded(false)
}
