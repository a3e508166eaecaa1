// Package config loads plant definitions and runtime settings.
//
// A plant file describes shops, machines and their sensors. It may be
// written in YAML (.yaml, .yml) or CUE (.cue); both decode into the same
// Plant structure. Runtime settings (database path, listen address, Kafka
// brokers) come from MELTSHOP_* environment variables, see Env.
package config

import (
	"time"
)

// Plant is the top-level plant definition.
type Plant struct {
	Name string `yaml:"name" json:"name"`
	// Interval is the sensor monitor period, e.g. "1s". Empty means the
	// machine package default.
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"`
	Shops    []Shop `yaml:"shops" json:"shops"`
	Rules    Rules  `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Shop groups machines.
type Shop struct {
	Name     string    `yaml:"name" json:"name"`
	Machines []Machine `yaml:"machines" json:"machines"`
}

// Machine is one melting machine.
type Machine struct {
	Name    string   `yaml:"name" json:"name"`
	Initial float64  `yaml:"initial,omitempty" json:"initial,omitempty"`
	Sensors []Sensor `yaml:"sensors,omitempty" json:"sensors,omitempty"`
}

// Sensor binds a reading key to a metrics-store topic.
type Sensor struct {
	// Key is the reading name rules look up ("voltage", "cosphi").
	Key  string `yaml:"key" json:"key"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Unit string `yaml:"unit,omitempty" json:"unit,omitempty"`
	// Topic defaults to "<machine>/<key>".
	Topic string `yaml:"topic,omitempty" json:"topic,omitempty"`
}

// Rules selects the rule set evaluated by the plant.
type Rules struct {
	// DisableThresholds turns off the built-in voltage/power-factor rules.
	DisableThresholds bool `yaml:"disable_thresholds,omitempty" json:"disable_thresholds,omitempty"`
	// AlertLabels lists event labels that raise an alert referencing the
	// event.
	AlertLabels []string `yaml:"alert_labels,omitempty" json:"alert_labels,omitempty"`
}

// MonitorInterval parses Interval. An empty Interval yields zero.
func (p *Plant) MonitorInterval() (time.Duration, error) {
	if p.Interval == "" {
		return 0, nil
	}
	return time.ParseDuration(p.Interval)
}

// Machines returns every machine of every shop, in file order.
func (p *Plant) Machines() []Machine {
	var out []Machine
	for _, s := range p.Shops {
		out = append(out, s.Machines...)
	}
	return out
}

// SensorTopic returns the configured topic or the default for machine.
func (s Sensor) SensorTopic(machine string) string {
	if s.Topic != "" {
		return s.Topic
	}
	return machine + "/" + s.Key
}

// DisplayName returns Name, falling back to Key.
func (s Sensor) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Key
}
