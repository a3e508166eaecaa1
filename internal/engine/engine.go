package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/meltshop/internal/clock"
)

// Engine is the single-writer task loop.
//
// Thread-safety model:
//   - Submit(), Do(), Stop(), QueueLen(), NewRun(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - Tasks execute one at a time, in submission order
//   - A failing or panicking task never stops the loop
type Engine struct {
	queue *taskQueue
	steps *clock.Sequence
	runs  RunIDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(gen RunIDGenerator) Option {
	return func(e *Engine) {
		e.runs = gen
	}
}

// New creates an idle engine. Call Run to start processing.
func New(opts ...Option) *Engine {
	e := &Engine{
		queue: newTaskQueue(),
		steps: clock.NewSequence(),
		runs:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewRun returns a fresh run id from the configured generator.
func (e *Engine) NewRun() string {
	return e.runs.Generate()
}

// Submit enqueues fn without waiting for it.
// Returns false if the engine has been stopped.
func (e *Engine) Submit(name string, fn func()) bool {
	return e.queue.Enqueue(task{
		name: name,
		fn: func() error {
			fn()
			return nil
		},
	})
}

// Do enqueues fn and waits for it to run, returning its error.
//
// If ctx ends first, Do returns ctx.Err(); the task stays queued and will
// still run. A stopped engine yields a RuntimeError with ErrCodeStopped.
func (e *Engine) Do(ctx context.Context, name string, fn func() error) error {
	done := make(chan error, 1)
	if !e.queue.Enqueue(task{name: name, fn: fn, done: done}) {
		return NewStoppedError(name)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the single-writer loop.
// Blocks until ctx is cancelled or Stop is called and the queue drained.
//
// ERROR HANDLING: a task error is logged with the task name and step and
// processing continues. Panics are recovered and reported the same way.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		if t, ok := e.queue.TryDequeue(); ok {
			e.execute(t)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.drainRejected()
			return ctx.Err()

		case <-e.queue.Wait():
			// A closed queue keeps the channel readable; exit once drained.
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// drainRejected fails every waiter still queued when the loop exits.
func (e *Engine) drainRejected() {
	for {
		t, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		if t.done != nil {
			t.done <- NewStoppedError(t.name)
		}
	}
}

func (e *Engine) execute(t task) {
	step := e.steps.Next()
	err := e.call(t)
	if err != nil {
		slog.Error("task failed",
			"task", t.name,
			"step", step,
			"error", err,
		)
	} else {
		slog.Debug("task done", "task", t.name, "step", step)
	}
	if t.done != nil {
		t.done <- err
	}
}

func (e *Engine) call(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(t.name, r)
		}
	}()
	return t.fn()
}

// Stop stops accepting tasks. Run finishes the tasks already queued and
// then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// QueueLen returns the number of tasks waiting to run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Steps returns the number of tasks executed so far.
func (e *Engine) Steps() int64 {
	return e.steps.Current()
}
