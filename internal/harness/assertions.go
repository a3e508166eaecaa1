package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/eventlog"
	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/journal"
	"github.com/roach88/meltshop/internal/plant"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", ev.Seq, ev.Kind, ev.Action, ev.Args)
		}
	}
	return buf.String()
}

// assertTraceContains looks for a step or notification with the action and
// args (subset match).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Action == a.Action && subsetMismatch(ev.Args, a.Args) == "" {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s with args %v", a.Action, a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the actions appear
// in order. Intervening entries are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		for _, want := range a.Actions {
			if ev.Action == want && positions[want] == 0 {
				positions[want] = i + 1
			}
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Action == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState queries the plant and subset-matches the answer.
func assertFinalState(p *plant.Plant, a Assertion) error {
	actual, err := queryState(p, a.Query, a.Where)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s where %s", a.Query, formatWhere(a.Where)),
			Actual:   err.Error(),
		}
	}
	if mismatch := subsetMismatch(actual, a.Expect); mismatch != "" {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s where %s to match %v", a.Query, formatWhere(a.Where), a.Expect),
			Actual:   mismatch,
		}
	}
	return nil
}

func queryState(p *plant.Plant, query string, where map[string]any) (map[string]any, error) {
	w := args(where)
	switch query {
	case QueryMachine:
		name, err := w.string("name")
		if err != nil {
			return nil, err
		}
		m, ok := p.Machine(name)
		if !ok {
			return nil, fmt.Errorf("machine %q not found", name)
		}
		pending := 0
		all := m.Alerts()
		for _, al := range all {
			if al.Pending() {
				pending++
			}
		}
		return map[string]any{
			"weight":         m.Weight(),
			"samples":        m.Chronology().Len(),
			"alerts":         len(all),
			"pending_alerts": pending,
		}, nil

	case QuerySession:
		id, err := w.string("id")
		if err != nil {
			return nil, err
		}
		s, ok := p.Sessions().Find(id)
		if !ok {
			return nil, fmt.Errorf("session %q not found", id)
		}
		out := snapshotResult(s)
		out["machine"] = s.MachineName()
		return out, nil

	case QueryAlerts:
		var preds []journal.Predicate[alert.Alert]
		if w.has("subject") {
			subject, err := w.string("subject")
			if err != nil {
				return nil, err
			}
			preds = append(preds, alert.BySubject(subject))
		}
		switch w["status"] {
		case nil:
		case "pending":
			preds = append(preds, alert.Pending)
		case "acknowledged":
			preds = append(preds, alert.Acknowledged)
		default:
			return nil, fmt.Errorf("unknown alert status %v", w["status"])
		}
		all := p.Alerts().All(preds...)
		messages := make([]any, 0, len(all))
		for _, al := range all {
			messages = append(messages, al.Message)
		}
		return map[string]any{"count": len(all), "messages": messages}, nil

	case QueryEvents:
		var preds []journal.Predicate[ir.Event]
		if w.has("label") {
			label, err := w.string("label")
			if err != nil {
				return nil, err
			}
			preds = append(preds, eventlog.HasLabel(label))
		}
		return map[string]any{"count": len(p.Events().All(preds...))}, nil

	default:
		return nil, fmt.Errorf("unknown query %q", query)
	}
}

func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// subsetMismatch reports the first expected key whose value differs from
// actual, or "" when every expected key matches. Extra keys in actual are
// ignored. Numbers compare by value and times by instant.
func subsetMismatch(actual, expected map[string]any) string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			return fmt.Sprintf("field %q missing", k)
		}
		if !reflect.DeepEqual(normalize(got), normalize(expected[k])) {
			return fmt.Sprintf("field %q = %v, want %v", k, got, expected[k])
		}
	}
	return ""
}

// normalize maps YAML-decoded and Go-produced values onto one
// representation: numbers become float64, times become UTC RFC 3339 strings.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC().Format(time.RFC3339Nano)
		}
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// EvaluateAssertions evaluates every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, p *plant.Plant) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(p, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}
