package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/meltshop/internal/ir"
)

// RenderTrace renders a trace as text, one line per event:
//
//	001 step load {"amount":50,"machine":"furnace-1"} -> {"timestamp":"...","weight":150}
//	002 notify alert.created {"id":"alert-0",...}
//
// Args and results are canonical JSON, so equal traces render to equal
// bytes.
func RenderTrace(name string, trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", name)
	for _, ev := range trace {
		fmt.Fprintf(&buf, "%03d %s %s", ev.Seq, ev.Kind, ev.Action)
		if len(ev.Args) > 0 {
			data, err := ir.MarshalCanonical(ev.Args)
			if err != nil {
				return nil, fmt.Errorf("render trace %d args: %w", ev.Seq, err)
			}
			fmt.Fprintf(&buf, " %s", data)
		}
		switch {
		case ev.Error != "":
			fmt.Fprintf(&buf, " -> error: %s", ev.Error)
		case len(ev.Result) > 0:
			data, err := ir.MarshalCanonical(ev.Result)
			if err != nil {
				return nil, fmt.Errorf("render trace %d result: %w", ev.Seq, err)
			}
			fmt.Fprintf(&buf, " -> %s", data)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	trace, err := RenderTrace(name, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, trace)
	return nil
}
