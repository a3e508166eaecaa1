package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/meltshop/internal/ledger"
	"github.com/roach88/meltshop/internal/machine"
	"github.com/roach88/meltshop/internal/sensor"
	"github.com/roach88/meltshop/internal/session"
)

func (h *Harness) apply(ctx context.Context, step Step) (map[string]any, error) {
	a := args(step.Args)
	switch step.Action {
	case ActionAdvance:
		d, err := a.duration("by")
		if err != nil {
			return nil, err
		}
		return map[string]any{"now": h.clock.Advance(d)}, nil

	case ActionLoad, ActionDispense:
		m, err := h.machine(a)
		if err != nil {
			return nil, err
		}
		amount, err := a.float("amount")
		if err != nil {
			return nil, err
		}
		var s ledger.Sample
		if step.Action == ActionLoad {
			s = m.Load(amount)
		} else {
			s = m.Dispense(amount)
		}
		return map[string]any{"weight": s.Weight, "timestamp": s.Timestamp}, nil

	case ActionWeight:
		m, err := h.machine(a)
		if err != nil {
			return nil, err
		}
		q := ledger.Current()
		if a.has("at") {
			at, err := a.time("at")
			if err != nil {
				return nil, err
			}
			q = ledger.At(at)
		}
		ans, err := m.Chronology().Query(q)
		if err != nil {
			return nil, err
		}
		return map[string]any{"weight": ans.Weight}, nil

	case ActionTotals:
		m, err := h.machine(a)
		if err != nil {
			return nil, err
		}
		from, err := a.time("from")
		if err != nil {
			return nil, err
		}
		to, err := a.time("to")
		if err != nil {
			return nil, err
		}
		ans, err := m.Chronology().Query(ledger.Range(from, to))
		if err != nil {
			return nil, err
		}
		return map[string]any{"loaded": ans.Totals.Loaded, "dispensed": ans.Totals.Dispensed}, nil

	case ActionStartSession:
		m, err := h.machine(a)
		if err != nil {
			return nil, err
		}
		var opts []session.StartOption
		if a.has("start") {
			t, err := a.time("start")
			if err != nil {
				return nil, err
			}
			opts = append(opts, session.WithStart(t))
		}
		return sessionResult(h.plant.Sessions().Start(m, opts...)), nil

	case ActionStopSession:
		s, err := h.session(a)
		if err != nil {
			return nil, err
		}
		return snapshotResult(s.Stop()), nil

	case ActionUpdateSession:
		s, err := h.session(a)
		if err != nil {
			return nil, err
		}
		var p session.Patch
		if a.has("start") {
			t, err := a.time("start")
			if err != nil {
				return nil, err
			}
			p.Start = &t
		}
		if a.has("end") {
			t, err := a.time("end")
			if err != nil {
				return nil, err
			}
			p.End = &t
		}
		return sessionResult(s.Update(p)), nil

	case ActionRecordSession:
		m, err := h.machine(a)
		if err != nil {
			return nil, err
		}
		start, err := a.time("start")
		if err != nil {
			return nil, err
		}
		var end time.Time
		if a.has("end") {
			if end, err = a.time("end"); err != nil {
				return nil, err
			}
		}
		return sessionResult(h.plant.Sessions().Record(m, start, end)), nil

	case ActionSnapshot:
		s, err := h.session(a)
		if err != nil {
			return nil, err
		}
		return snapshotResult(s), nil

	case ActionCreateEvent:
		var ts time.Time
		if a.has("timestamp") {
			t, err := a.time("timestamp")
			if err != nil {
				return nil, err
			}
			ts = t
		}
		props, err := a.object("properties")
		if err != nil {
			return nil, err
		}
		labels, err := a.strings("labels")
		if err != nil {
			return nil, err
		}
		ev := h.plant.Events().Create(ts, props, labels)
		return map[string]any{"id": ev.ID()}, nil

	case ActionAcknowledge:
		id, err := a.string("alert")
		if err != nil {
			return nil, err
		}
		al, ok := h.plant.Alerts().Acknowledge(id)
		if !ok {
			return nil, fmt.Errorf("%w: alert %q not found", errStep, id)
		}
		return map[string]any{"id": al.ID, "status": al.Status.String()}, nil

	case ActionReading:
		m, err := h.machine(a)
		if err != nil {
			return nil, err
		}
		key, err := a.string("sensor")
		if err != nil {
			return nil, err
		}
		value, err := a.float("value")
		if err != nil {
			return nil, err
		}
		sn, ok := m.Sensor(key)
		if !ok {
			return nil, fmt.Errorf("%w: sensor %q not found on %s", errStep, key, m.Name())
		}
		mem, ok := sn.(*sensor.Memory)
		if !ok {
			return nil, fmt.Errorf("%w: sensor %q is not recordable", errStep, key)
		}
		mem.Record(h.clock.Now(), value)
		return nil, nil

	case ActionEvaluate:
		m, err := h.machine(a)
		if err != nil {
			return nil, err
		}
		mo, err := h.monitor(m)
		if err != nil {
			return nil, err
		}
		before := len(m.Alerts())
		mo.Tick(ctx)
		return map[string]any{"raised": len(m.Alerts()) - before}, nil

	default:
		return nil, fmt.Errorf("%w: unknown action %q", errStep, step.Action)
	}
}

func (h *Harness) machine(a args) (*machine.Machine, error) {
	name, err := a.string("machine")
	if err != nil {
		return nil, err
	}
	m, ok := h.plant.Machine(name)
	if !ok {
		return nil, fmt.Errorf("%w: machine %q not found", errStep, name)
	}
	return m, nil
}

func (h *Harness) session(a args) (session.Session, error) {
	id, err := a.string("session")
	if err != nil {
		return session.Session{}, err
	}
	s, ok := h.plant.Sessions().Find(id)
	if !ok {
		return session.Session{}, fmt.Errorf("%w: session %q not found", errStep, id)
	}
	return s, nil
}

func (h *Harness) monitor(m *machine.Machine) (*machine.Monitor, error) {
	for _, mo := range h.plant.Monitors() {
		if mo.Machine() == m {
			return mo, nil
		}
	}
	return nil, fmt.Errorf("%w: no monitor for %s", errStep, m.Name())
}

func sessionResult(s session.Session) map[string]any {
	return map[string]any{"id": s.ID(), "state": s.State().String()}
}

func snapshotResult(s session.Session) map[string]any {
	snap := s.Chronology().Snapshot()
	return map[string]any{
		"id":        s.ID(),
		"state":     s.State().String(),
		"initial":   snap.Initial,
		"weight":    snap.Weight,
		"loaded":    snap.Loaded,
		"dispensed": snap.Dispensed,
	}
}

// args reads typed step arguments decoded from YAML.
type args map[string]any

func (a args) has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a args) string(key string) (string, error) {
	v, ok := a[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", errStep, key)
	}
	return v, nil
}

func (a args) float(key string) (float64, error) {
	switch v := a[key].(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", errStep, key)
	}
}

func (a args) time(key string) (time.Time, error) {
	switch v := a[key].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", errStep, key, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s must be an RFC 3339 time", errStep, key)
	}
}

func (a args) duration(key string) (time.Duration, error) {
	s, err := a.string(key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errStep, key, err)
	}
	return d, nil
}

func (a args) object(key string) (map[string]any, error) {
	switch v := a[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a mapping", errStep, key)
	}
}

func (a args) strings(key string) ([]string, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", errStep, key)
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must contain strings", errStep, key)
		}
		out = append(out, s)
	}
	return out, nil
}
