// Package harness runs meltshop scenarios: scripted sequences of plant
// operations executed against a manual clock, producing a deterministic
// trace that is compared with golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: melt_cycle
//	description: "Load, melt and tap one furnace"
//	start: "2024-03-01T08:00:00Z"
//	plant:
//	  name: north
//	  shops:
//	    - name: melt
//	      machines:
//	        - name: furnace-1
//	          initial: 100
//	          sensors:
//	            - { key: voltage, unit: V }
//	steps:
//	  - action: start_session
//	    args: { machine: furnace-1 }
//	  - action: advance
//	    args: { by: 1m }
//	  - action: load
//	    args: { machine: furnace-1, amount: 50 }
//	    expect: { weight: 150 }
//	assertions:
//	  - type: trace_contains
//	    action: session.started
//	  - type: final_state
//	    query: session
//	    where: { id: m1 }
//	    expect: { state: active, loaded: 50 }
//
// A scenario may reference a plant file instead of inlining it with
// plant_file, resolved relative to the scenario.
//
// # Trace
//
// Every step appends one "step" line; every alert, event and session
// notification it causes appends a "notify" line after it. Args and
// results render as canonical JSON, so traces are byte-stable.
//
// # Assertion Types
//
//   - trace_contains: an action (step or notification) with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: a machine, session, alerts or events query matches
//
// # Determinism
//
// Scenarios run on testutil.ManualClock starting at start (default
// testutil.Epoch), with engine.Inline and in-memory sensors. Time moves
// only through advance steps.
package harness
