package machine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/meltshop/internal/ir"
)

// DefaultInterval is the monitor period used when none is configured.
const DefaultInterval = time.Second

// Evaluator consumes rule contexts. *rules.Rules satisfies it.
type Evaluator interface {
	Evaluate(ctx ir.Context)
}

// Submitter hands work to the single-writer loop. *engine.Engine and
// engine.Inline satisfy it.
type Submitter interface {
	Submit(name string, fn func()) bool
}

// Monitor periodically evaluates rules against a machine's sensors.
//
// Each tick reads every sensor on the monitor goroutine and then submits a
// single evaluation task. Stop is best-effort: a tick already reading
// sensors may still submit one last evaluation.
type Monitor struct {
	machine  *Machine
	rules    Evaluator
	engine   Submitter
	interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewMonitor creates an idle monitor. A non-positive interval means
// DefaultInterval.
func NewMonitor(m *Machine, rules Evaluator, engine Submitter, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		machine:  m,
		rules:    rules,
		engine:   engine,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Machine returns the monitored machine.
func (mo *Monitor) Machine() *Machine { return mo.machine }

// Start launches the ticker goroutine. Later calls are no-ops.
// The monitor runs until Stop is called or ctx ends.
func (mo *Monitor) Start(ctx context.Context) {
	mo.startOnce.Do(func() {
		slog.Info("monitor started", "machine", mo.machine.Name(), "interval", mo.interval)
		go mo.loop(ctx)
	})
}

func (mo *Monitor) loop(ctx context.Context) {
	defer close(mo.done)

	ticker := time.NewTicker(mo.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mo.stop:
			return
		case <-ticker.C:
			mo.Tick(ctx)
		}
	}
}

// Tick runs one monitoring cycle synchronously: read sensors, then submit
// evaluation. Sensor failures are logged and the remaining readings are
// still evaluated.
func (mo *Monitor) Tick(ctx context.Context) {
	snap, err := mo.machine.Snapshot(ctx)
	if err != nil {
		slog.Debug("sensor read failed", "machine", mo.machine.Name(), "error", err)
	}
	name := mo.machine.Name()
	mo.engine.Submit("evaluate "+name, func() {
		mo.rules.Evaluate(ir.SensorContext(name, snap))
	})
}

// Stop halts the ticker. Safe to call more than once, and before Start.
func (mo *Monitor) Stop() {
	mo.stopOnce.Do(func() {
		close(mo.stop)
	})
}

// Done is closed once a started monitor goroutine has exited.
func (mo *Monitor) Done() <-chan struct{} {
	return mo.done
}
