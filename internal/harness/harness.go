package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/engine"
	"github.com/roach88/meltshop/internal/eventlog"
	"github.com/roach88/meltshop/internal/plant"
	"github.com/roach88/meltshop/internal/pubsub"
	"github.com/roach88/meltshop/internal/session"
	"github.com/roach88/meltshop/internal/testutil"
)

// Harness executes one scenario against a fresh plant.
type Harness struct {
	plant  *plant.Plant
	clock  *testutil.ManualClock
	seq    *clock.Sequence
	result *Result
}

// Run executes a scenario and returns its result.
//
// Each run builds a fresh plant with in-memory sensors. Step failures that
// the scenario does not expect abort the run with an error; expect and
// assertion mismatches are collected in Result.Errors instead.
func Run(s *Scenario) (*Result, error) {
	start, err := s.StartTime()
	if err != nil {
		return nil, fmt.Errorf("scenario %q: start: %w", s.Name, err)
	}
	clk := testutil.NewManualClock(start)

	p, err := plant.Build(&s.Plant, clk, plant.MemorySensors(), plant.WithSubmitter(engine.Inline{}))
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	runID := s.RunID
	if runID == "" {
		runID = "scenario-" + s.Name
	}
	gen := engine.NewFixedGenerator(runID)
	h := &Harness{
		plant:  p,
		clock:  clk,
		seq:    clock.NewSequence(),
		result: NewResult(gen.Generate()),
	}

	subs := h.observe()
	defer func() {
		for _, sub := range subs {
			sub.Cancel()
		}
	}()

	ctx := context.Background()
	for i, step := range s.Steps {
		if err := h.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
	}

	for _, msg := range EvaluateAssertions(h.result, s.Assertions, p) {
		h.result.AddError(msg)
	}

	slog.Debug("scenario finished", "scenario", s.Name, "run", h.result.RunID, "pass", h.result.Pass)
	return h.result, nil
}

// observe traces every notification the plant publishes.
func (h *Harness) observe() []*pubsub.Subscription {
	return []*pubsub.Subscription{
		h.plant.Alerts().Stream(func(n alert.Notification) {
			a := n.Record
			payload := map[string]any{"id": a.ID}
			if n.Type == alert.NotifyCreated {
				payload["message"] = a.Message
				payload["subject"] = a.Subject
				payload["timestamp"] = a.Timestamp
				if a.Source != nil {
					payload["source"] = a.Source.ID()
				}
			}
			h.notify("alert."+string(n.Type), payload)
		}),
		h.plant.Events().Stream(func(n eventlog.Notification) {
			labels := make([]any, 0, len(n.Record.Labels()))
			for _, l := range n.Record.Labels() {
				labels = append(labels, l)
			}
			h.notify("event."+string(n.Type), map[string]any{
				"id":        n.Record.ID(),
				"timestamp": n.Record.Timestamp(),
				"labels":    labels,
			})
		}),
		h.plant.Sessions().Stream(func(n session.Notification) {
			payload := map[string]any{
				"id":      n.Session.ID(),
				"machine": n.Session.MachineName(),
				"start":   n.Window.Start,
			}
			if !n.Window.Open() {
				payload["end"] = n.Window.End
			}
			h.notify("session."+string(n.Type), payload)
		}),
	}
}

func (h *Harness) notify(action string, payload map[string]any) {
	h.result.add(TraceEvent{Seq: h.seq.Next(), Kind: KindNotify, Action: action, Args: payload})
}

// execute runs one step. The step line is appended before the action runs
// so the notifications it causes follow it in the trace.
func (h *Harness) execute(ctx context.Context, index int, step Step) error {
	idx := h.result.add(TraceEvent{Seq: h.seq.Next(), Kind: KindStep, Action: step.Action, Args: step.Args})

	res, err := h.apply(ctx, step)
	if err != nil {
		if step.ExpectError == "" {
			return fmt.Errorf("steps[%d] %s: %w", index, step.Action, err)
		}
		h.result.Trace[idx].Error = err.Error()
		if !strings.Contains(err.Error(), step.ExpectError) {
			h.result.AddError(fmt.Sprintf("steps[%d] %s: error %q does not contain %q", index, step.Action, err, step.ExpectError))
		}
		return nil
	}
	if step.ExpectError != "" {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q", index, step.Action, step.ExpectError))
	}

	h.result.Trace[idx].Result = res
	if mismatch := subsetMismatch(res, step.Expect); mismatch != "" {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: %s", index, step.Action, mismatch))
	}
	return nil
}

// errStep marks a step rejected for its arguments or for referring to
// something that does not exist.
var errStep = errors.New("step failed")
