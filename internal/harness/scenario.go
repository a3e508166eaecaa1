package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/meltshop/internal/config"
)

// Scenario is a scripted plant run.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Start is the initial clock reading (RFC 3339). Empty means
	// testutil.Epoch.
	Start string `yaml:"start,omitempty"`

	// Plant is the inline plant definition. Ignored when PlantFile is set.
	Plant config.Plant `yaml:"plant,omitempty"`

	// PlantFile is a YAML or CUE plant file, relative to the scenario.
	PlantFile string `yaml:"plant_file,omitempty"`

	// RunID is reported in the result. Empty means "scenario-<name>".
	RunID string `yaml:"run_id,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one plant operation.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Args are the action arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect is a subset match against the step result.
	Expect map[string]any `yaml:"expect,omitempty"`

	// ExpectError makes the step expected to fail with an error containing
	// this text. The run continues after an expected failure.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step actions.
const (
	ActionAdvance       = "advance"
	ActionLoad          = "load"
	ActionDispense      = "dispense"
	ActionWeight        = "weight"
	ActionTotals        = "totals"
	ActionStartSession  = "start_session"
	ActionStopSession   = "stop_session"
	ActionUpdateSession = "update_session"
	ActionRecordSession = "record_session"
	ActionSnapshot      = "snapshot"
	ActionCreateEvent   = "create_event"
	ActionAcknowledge   = "acknowledge"
	ActionReading       = "reading"
	ActionEvaluate      = "evaluate"
)

// Assertion validates the trace or the final plant state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action names a step action or notification type such as
	// "alert.created" (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args is a subset match on step args or notification payload
	// (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Query is "machine", "session", "alerts" or "events" (final_state).
	Query string `yaml:"query,omitempty"`

	// Where selects the queried object (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is a subset match on the query result (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Final state queries.
const (
	QueryMachine = "machine"
	QuerySession = "session"
	QueryAlerts  = "alerts"
	QueryEvents  = "events"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly. A relative plant_file is resolved against
// the scenario's directory and loaded.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario decodes and validates scenario YAML. basePath resolves a
// relative plant_file.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if s.PlantFile != "" {
		path := s.PlantFile
		if !filepath.IsAbs(path) && basePath != "" {
			path = filepath.Join(basePath, path)
		}
		p, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		s.Plant = *p
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// StartTime returns the parsed Start, or zero when unset.
func (s *Scenario) StartTime() (time.Time, error) {
	if s.Start == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s.Start)
}

var knownActions = map[string]bool{
	ActionAdvance: true, ActionLoad: true, ActionDispense: true,
	ActionWeight: true, ActionTotals: true, ActionStartSession: true,
	ActionStopSession: true, ActionUpdateSession: true, ActionRecordSession: true,
	ActionSnapshot: true, ActionCreateEvent: true, ActionAcknowledge: true,
	ActionReading: true, ActionEvaluate: true,
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.StartTime(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := s.Plant.Validate(); err != nil {
		return fmt.Errorf("plant: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Action == "" {
			return fmt.Errorf("steps[%d]: action is required", i)
		}
		if !knownActions[step.Action] {
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		switch a.Query {
		case QueryMachine, QuerySession, QueryAlerts, QueryEvents:
		default:
			return fmt.Errorf("assertions[%d]: unknown final_state query %q", index, a.Query)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
