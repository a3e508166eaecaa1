// Package plant assembles the melting plant: shops of machines sharing one
// event log, one alert log, one session registry and one rule set.
//
// Init starts a sensor monitor for every machine. It is idempotent: the
// first call starts the monitors, later calls return without side effects.
package plant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/engine"
	"github.com/roach88/meltshop/internal/eventlog"
	"github.com/roach88/meltshop/internal/machine"
	"github.com/roach88/meltshop/internal/rules"
	"github.com/roach88/meltshop/internal/sensor"
	"github.com/roach88/meltshop/internal/session"
)

// Plant is the root of the melting-plant hierarchy.
type Plant struct {
	name     string
	clock    clock.Clock
	engine   machine.Submitter
	interval time.Duration

	alerts   *alert.Log
	events   *eventlog.Log
	sessions *session.Registry
	rules    *rules.Rules

	shops    []*Shop
	monitors []*machine.Monitor

	initOnce sync.Once
}

// Shop is a named group of machines.
type Shop struct {
	name     string
	plant    *Plant
	machines []*machine.Machine
}

type options struct {
	submitter   machine.Submitter
	interval    time.Duration
	thresholds  bool
	alertLabels []string
}

// Option configures New.
type Option func(*options)

// WithSubmitter routes monitor evaluations through s. Default:
// engine.Inline.
func WithSubmitter(s machine.Submitter) Option {
	return func(o *options) { o.submitter = s }
}

// WithInterval sets the monitor period. Default: machine.DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithoutThresholds leaves the built-in voltage/power-factor rule out.
func WithoutThresholds() Option {
	return func(o *options) { o.thresholds = false }
}

// WithAlertLabels adds one event-label rule per label; each raises an
// alert referencing the labelled event.
func WithAlertLabels(labels ...string) Option {
	return func(o *options) { o.alertLabels = append(o.alertLabels, labels...) }
}

// New creates an empty plant with its shared logs and rule set.
func New(name string, clk clock.Clock, opts ...Option) *Plant {
	o := options{submitter: engine.Inline{}, thresholds: true}
	for _, opt := range opts {
		opt(&o)
	}

	alerts := alert.NewLog()
	rs := rules.Compose()
	if o.thresholds {
		rs.Add(rules.Melting(rules.AlertIssuer(alerts), clk))
	}
	for _, label := range o.alertLabels {
		rs.Add(rules.AlertOnLabel(label, alerts))
	}

	return &Plant{
		name:     name,
		clock:    clk,
		engine:   o.submitter,
		interval: o.interval,
		alerts:   alerts,
		events:   eventlog.NewLog(clk, rs),
		sessions: session.NewRegistry(clk),
		rules:    rs,
	}
}

// Name returns the plant name.
func (p *Plant) Name() string { return p.name }

// Clock returns the plant wall clock.
func (p *Plant) Clock() clock.Clock { return p.clock }

// Alerts returns the shared alert log.
func (p *Plant) Alerts() *alert.Log { return p.alerts }

// Events returns the shared event log.
func (p *Plant) Events() *eventlog.Log { return p.events }

// Sessions returns the shared session registry.
func (p *Plant) Sessions() *session.Registry { return p.sessions }

// Rules returns the plant rule set. Rules added before Init apply to
// monitors and events alike.
func (p *Plant) Rules() *rules.Rules { return p.rules }

// AddShop appends a shop. Names are not checked for uniqueness here;
// config.Plant.Validate does that for file-defined plants.
func (p *Plant) AddShop(name string) *Shop {
	s := &Shop{name: name, plant: p}
	p.shops = append(p.shops, s)
	return s
}

// Shops returns the shops in creation order.
func (p *Plant) Shops() []*Shop {
	out := make([]*Shop, len(p.shops))
	copy(out, p.shops)
	return out
}

// Machines returns every machine of every shop.
func (p *Plant) Machines() []*machine.Machine {
	var out []*machine.Machine
	for _, s := range p.shops {
		out = append(out, s.machines...)
	}
	return out
}

// Machine finds a machine by name across all shops.
func (p *Plant) Machine(name string) (*machine.Machine, bool) {
	for _, s := range p.shops {
		for _, m := range s.machines {
			if m.Name() == name {
				return m, true
			}
		}
	}
	return nil, false
}

// Name returns the shop name.
func (s *Shop) Name() string { return s.name }

// Machines returns the shop machines in creation order.
func (s *Shop) Machines() []*machine.Machine {
	out := make([]*machine.Machine, len(s.machines))
	copy(out, s.machines)
	return out
}

// AddMachine creates a machine in this shop wired to the plant alert log
// and registers its monitor.
func (s *Shop) AddMachine(name string, initial float64, sensors map[string]sensor.Sensor) (*machine.Machine, error) {
	p := s.plant
	if _, exists := p.Machine(name); exists {
		return nil, fmt.Errorf("add machine %q: already defined", name)
	}
	m := machine.New(name, initial, p.clock, sensors, p.alerts)
	s.machines = append(s.machines, m)
	p.monitors = append(p.monitors, machine.NewMonitor(m, p.rules, p.engine, p.interval))
	return m, nil
}

// Monitors returns the machine monitors in creation order.
func (p *Plant) Monitors() []*machine.Monitor {
	out := make([]*machine.Monitor, len(p.monitors))
	copy(out, p.monitors)
	return out
}

// Init starts every machine monitor exactly once. Machines added after the
// first Init are not monitored.
func (p *Plant) Init(ctx context.Context) {
	p.initOnce.Do(func() {
		for _, mo := range p.monitors {
			mo.Start(ctx)
		}
		slog.Info("plant initialized", "plant", p.name, "shops", len(p.shops), "machines", len(p.monitors))
	})
}

// Stop stops every monitor. Safe to call whether or not Init ran.
func (p *Plant) Stop() {
	for _, mo := range p.monitors {
		mo.Stop()
	}
}
