package engine

import "context"

// Inline runs every task on the caller's goroutine. Single-threaded
// drivers such as the scenario harness use it where no Run loop exists.
type Inline struct{}

// Submit runs fn immediately. It always reports true.
func (Inline) Submit(_ string, fn func()) bool {
	fn()
	return true
}

// Do runs fn immediately and returns its error.
func (Inline) Do(_ context.Context, _ string, fn func() error) error {
	return fn()
}
