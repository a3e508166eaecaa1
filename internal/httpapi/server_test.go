package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meltshop/internal/engine"
	"github.com/roach88/meltshop/internal/metrics"
	"github.com/roach88/meltshop/internal/plant"
	"github.com/roach88/meltshop/internal/sensor"
	"github.com/roach88/meltshop/internal/session"
	"github.com/roach88/meltshop/internal/testutil"
)

type fixture struct {
	plant   *plant.Plant
	exec    *engine.Engine
	clock   *testutil.ManualClock
	server  *httptest.Server
	voltage *sensor.Memory
}

func setupServer(t *testing.T) *fixture {
	t.Helper()

	clk := testutil.NewManualClock(time.Time{})
	p := plant.New("north", clk, plant.WithAlertLabels("critical"))
	voltage := sensor.NewMemory("Voltage", "V")
	_, err := p.AddShop("melt").AddMachine("furnace-1", 100, map[string]sensor.Sensor{"voltage": voltage})
	require.NoError(t, err)

	eng := engine.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()

	srv := httptest.NewServer(New(p, eng, metrics.New()).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &fixture{plant: p, exec: eng, clock: clk, server: srv, voltage: voltage}
}

// parkedExec queues tasks without running them and returns once the
// caller's context ends.
type parkedExec struct {
	tasks []func() error
}

func (e *parkedExec) Do(ctx context.Context, _ string, fn func() error) error {
	e.tasks = append(e.tasks, fn)
	<-ctx.Done()
	return ctx.Err()
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestHealth(t *testing.T) {
	f := setupServer(t)
	code, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok","plant":"north"}`, string(body))
}

func TestMachines_LoadDispenseWeight(t *testing.T) {
	f := setupServer(t)

	code, _ := f.do(t, http.MethodPost, "/machines/furnace-1/load", map[string]any{"amount": 50})
	require.Equal(t, http.StatusOK, code)
	f.clock.Advance(time.Minute)
	code, body := f.do(t, http.MethodPost, "/machines/furnace-1/dispense", map[string]any{"amount": 30})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 120.0, decode[map[string]any](t, body)["weight"])

	code, body = f.do(t, http.MethodGet, "/machines/furnace-1/weight", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 120.0, decode[map[string]any](t, body)["weight"])

	at := testutil.Epoch.Add(30 * time.Second).Format(time.RFC3339)
	code, body = f.do(t, http.MethodGet, "/machines/furnace-1/weight?at="+at, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 150.0, decode[map[string]any](t, body)["weight"])

	from := testutil.Epoch.Add(-time.Minute).Format(time.RFC3339)
	to := testutil.Epoch.Add(time.Hour).Format(time.RFC3339)
	code, body = f.do(t, http.MethodGet, "/machines/furnace-1/weight?from="+from+"&to="+to, nil)
	require.Equal(t, http.StatusOK, code)
	got := decode[map[string]any](t, body)
	assert.Equal(t, 50.0, got["loaded"])
	assert.Equal(t, 30.0, got["dispensed"])

	code, body = f.do(t, http.MethodGet, "/machines", nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]machineView](t, body)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"voltage"}, list[0].Sensors)
}

func TestMachines_Errors(t *testing.T) {
	f := setupServer(t)

	code, _ := f.do(t, http.MethodPost, "/machines/missing/load", map[string]any{"amount": 1})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/machines/furnace-1/load", map[string]any{"tons": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/machines/furnace-1/weight?from=2024-03-01T08:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/machines/furnace-1/weight?at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMachines_Measurements(t *testing.T) {
	f := setupServer(t)
	f.voltage.Record(testutil.Epoch.Add(-10*time.Minute), 380)
	f.voltage.Record(testutil.Epoch.Add(-5*time.Minute), 390)

	code, body := f.do(t, http.MethodGet, "/machines/furnace-1/sensors/voltage", nil)
	require.Equal(t, http.StatusOK, code)
	got := decode[struct {
		Sensor   string `json:"sensor"`
		Readings []struct {
			Value float64 `json:"value"`
		} `json:"readings"`
	}](t, body)
	assert.Equal(t, "Voltage", got.Sensor)
	require.Len(t, got.Readings, 2)
	assert.Equal(t, 390.0, got.Readings[1].Value)

	code, _ = f.do(t, http.MethodGet, "/machines/furnace-1/sensors/cosphi", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessions_Lifecycle(t *testing.T) {
	f := setupServer(t)

	code, body := f.do(t, http.MethodPost, "/sessions", map[string]any{"machine": "furnace-1"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "m1", decode[map[string]any](t, body)["id"])

	code, body = f.do(t, http.MethodPost, "/sessions", map[string]any{"machine": "furnace-1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "m1", decode[map[string]any](t, body)["id"])

	f.clock.Advance(time.Minute)
	f.do(t, http.MethodPost, "/machines/furnace-1/load", map[string]any{"amount": 25})
	f.clock.Advance(time.Minute)

	code, body = f.do(t, http.MethodPost, "/sessions/m1/stop", nil)
	require.Equal(t, http.StatusOK, code)
	got := decode[map[string]any](t, body)
	assert.Equal(t, "completed", got["state"])
	chron := got["chronology"].(map[string]any)
	assert.Equal(t, 25.0, chron["loaded"])
	assert.Equal(t, 125.0, chron["weight"])

	code, body = f.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]map[string]any](t, body), 1)

	end := testutil.Epoch.Add(30 * time.Second)
	code, body = f.do(t, http.MethodPatch, "/sessions/m1", map[string]any{"end": end})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", decode[map[string]any](t, body)["state"])

	code, _ = f.do(t, http.MethodGet, "/sessions/m9", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodGet, "/sessions?id=m9", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]\n", string(body))
}

func TestSessions_PatchZeroEndCompletesOnce(t *testing.T) {
	f := setupServer(t)

	var completed int
	require.NoError(t, f.exec.Do(context.Background(), "subscribe", func() error {
		f.plant.Sessions().Stream(func(n session.Notification) {
			if n.Type == session.NotifyCompleted {
				completed++
			}
		})
		return nil
	}))

	code, _ := f.do(t, http.MethodPost, "/sessions", map[string]any{"machine": "furnace-1"})
	require.Equal(t, http.StatusCreated, code)
	f.clock.Advance(time.Minute)

	code, body := f.do(t, http.MethodPatch, "/sessions/m1", map[string]any{"end": "0001-01-01T00:00:00Z"})
	require.Equal(t, http.StatusOK, code)
	got := decode[map[string]any](t, body)
	assert.Equal(t, "completed", got["state"])
	window := got["window"].(map[string]any)
	assert.Equal(t, testutil.Epoch.Add(time.Minute).Format(time.RFC3339), window["end"])

	code, body = f.do(t, http.MethodPost, "/sessions/m1/stop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", decode[map[string]any](t, body)["state"])

	var seen int
	require.NoError(t, f.exec.Do(context.Background(), "count", func() error {
		seen = completed
		return nil
	}))
	assert.Equal(t, 1, seen)
}

func TestEventsAndAlerts(t *testing.T) {
	f := setupServer(t)

	code, body := f.do(t, http.MethodPost, "/events", map[string]any{
		"properties": map[string]any{"machine": "furnace-1", "message": "Slag overflow"},
		"labels":     []string{"critical"},
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "ev-1", decode[map[string]any](t, body)["id"])

	code, body = f.do(t, http.MethodGet, "/events?label=critical", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]map[string]any](t, body), 1)

	code, body = f.do(t, http.MethodGet, "/alerts?status=pending", nil)
	require.Equal(t, http.StatusOK, code)
	alerts := decode[[]map[string]any](t, body)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Slag overflow", alerts[0]["message"])
	id := alerts[0]["id"].(string)

	code, body = f.do(t, http.MethodPost, "/alerts/"+id+"/acknowledge", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "acknowledged", decode[map[string]any](t, body)["status"])

	code, body = f.do(t, http.MethodGet, "/alerts?status=pending", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]\n", string(body))

	code, _ = f.do(t, http.MethodPost, "/alerts/alert-99/acknowledge", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/alerts?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupServer(t)
	f.do(t, http.MethodPost, "/machines/furnace-1/load", map[string]any{"amount": 5})

	code, body := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `meltshop_machine_weight{machine="furnace-1"} 105`)
}

func TestStream_PushesNotifications(t *testing.T) {
	f := setupServer(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	f.do(t, http.MethodPost, "/sessions", map[string]any{"machine": "furnace-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "session", msg.Kind)
	assert.Equal(t, "started", msg.Type)
	assert.Contains(t, string(msg.Data), `"id":"m1"`)
}

func TestSessions_AbandonedRequestSkipsTask(t *testing.T) {
	clk := testutil.NewManualClock(time.Time{})
	p := plant.New("north", clk)
	_, err := p.AddShop("melt").AddMachine("furnace-1", 100, nil)
	require.NoError(t, err)

	exec := &parkedExec{}
	h := New(p, exec, nil).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"machine":"furnace-1"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, req)
	}()
	cancel()
	<-done

	require.Len(t, exec.tasks, 1)
	assert.ErrorIs(t, exec.tasks[0](), context.Canceled)
	_, active := p.Sessions().Active("furnace-1")
	assert.False(t, active)
}
