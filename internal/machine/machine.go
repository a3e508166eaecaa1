// Package machine implements melting machines and their periodic rule
// monitors.
//
// A Machine owns its weight ledger and a set of keyed sensors ("voltage",
// "cosphi"). Its alerts live in the plant-wide alert log and are selected
// by subject. A Monitor reads the machine sensors on a ticker and submits
// rule evaluation to the engine, so sensor I/O never blocks the
// single-writer loop.
package machine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/ledger"
	"github.com/roach88/meltshop/internal/sensor"
)

// Machine is one melting machine (furnace, ladle, holder).
//
// Load, Dispense and Alerts touch core state and must run on the engine
// loop. Snapshot performs sensor I/O and may run anywhere.
type Machine struct {
	name    string
	ledger  *ledger.Ledger
	sensors map[string]sensor.Sensor
	alerts  *alert.Log
}

// New creates a machine holding initial metal, stamped by clk.
// sensors maps reading keys to sensors and is copied.
func New(name string, initial float64, clk clock.Clock, sensors map[string]sensor.Sensor, alerts *alert.Log) *Machine {
	s := maps.Clone(sensors)
	if s == nil {
		s = map[string]sensor.Sensor{}
	}
	return &Machine{
		name:    name,
		ledger:  ledger.New(initial, clk),
		sensors: s,
		alerts:  alerts,
	}
}

// Name returns the unique machine name.
func (m *Machine) Name() string { return m.name }

// Load adds amount to the machine and returns the new ledger sample.
func (m *Machine) Load(amount float64) ledger.Sample {
	return m.ledger.Load(amount)
}

// Dispense removes amount from the machine and returns the new sample.
func (m *Machine) Dispense(amount float64) ledger.Sample {
	return m.ledger.Dispense(amount)
}

// Weight returns the current metal weight.
func (m *Machine) Weight() float64 {
	return m.ledger.CurrentWeight()
}

// Chronology returns the machine weight ledger.
func (m *Machine) Chronology() *ledger.Ledger {
	return m.ledger
}

// Sensors returns a copy of the keyed sensor set.
func (m *Machine) Sensors() map[string]sensor.Sensor {
	return maps.Clone(m.sensors)
}

// Sensor returns the sensor registered under key.
func (m *Machine) Sensor(key string) (sensor.Sensor, bool) {
	s, ok := m.sensors[key]
	return s, ok
}

// SensorKeys returns the sensor keys in sorted order.
func (m *Machine) SensorKeys() []string {
	return slices.Sorted(maps.Keys(m.sensors))
}

// Alerts returns every alert raised for this machine, in trigger order.
func (m *Machine) Alerts() []alert.Alert {
	if m.alerts == nil {
		return []alert.Alert{}
	}
	return m.alerts.All(alert.BySubject(m.name))
}

// Snapshot reads the current value of every sensor.
//
// Sensors without data (the zero Reading) are left out so threshold rules
// skip them. Sensors that fail are left out too; their errors are joined
// into the returned error alongside the partial snapshot.
func (m *Machine) Snapshot(ctx context.Context) (ir.Snapshot, error) {
	snap := ir.Snapshot{}
	var errs []error
	for _, key := range m.SensorKeys() {
		r, err := m.sensors[key].Current(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if r.IsZero() {
			continue
		}
		snap[key] = r
	}
	return snap, errors.Join(errs...)
}
