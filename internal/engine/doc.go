// Package engine implements the meltshop single-writer loop.
//
// Every mutation of core plant state (ledger appends, session transitions,
// log appends, acknowledgments, rule evaluation) runs as a task on one
// goroutine. The core types hold no locks; the engine is what makes them
// safe to drive from HTTP handlers, sensor monitors and the CLI at once.
//
// ARCHITECTURE:
//
// Single-Writer Task Loop:
//  1. Producers call Submit (fire and forget) or Do (wait for the result)
//     from any goroutine
//  2. Tasks are appended to an unbounded FIFO queue
//  3. Engine.Run dequeues tasks one at a time and executes them
//  4. A task that fails or panics is logged and the loop continues
//
// Asynchrony stays at the edges: sensor I/O happens on the caller's
// goroutine and only the resulting state change is submitted.
//
// Every executed task is stamped with a monotonic step number taken from
// a clock.Sequence, so log lines can be ordered even when wall clocks tie.
package engine
