package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a failure reported by the engine loop.
//
// Runtime errors include:
//   - Stopped: the engine no longer accepts tasks
//   - Panicked: a task panicked; the loop recovered and continued
//
// Errors returned by a task itself are passed through to Do unchanged.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Task names the affected task, if any.
	Task string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates the engine was stopped before the task ran.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodePanicked indicates the task panicked.
	ErrCodePanicked RuntimeErrorCode = "TASK_PANICKED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("%s: %s (task=%s)", e.Code, e.Message, e.Task)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStoppedError returns true if the error reports a stopped engine.
// Uses errors.As to handle wrapped errors.
func IsStoppedError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStopped
	}
	return false
}

// IsPanicError returns true if the error reports a panicked task.
// Uses errors.As to handle wrapped errors.
func IsPanicError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodePanicked
	}
	return false
}

// NewStoppedError creates a RuntimeError for a rejected task.
func NewStoppedError(taskName string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStopped,
		Message: "engine is stopped",
		Task:    taskName,
	}
}

// NewPanicError creates a RuntimeError for a recovered panic.
func NewPanicError(taskName string, recovered any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodePanicked,
		Message: fmt.Sprintf("task panicked: %v", recovered),
		Task:    taskName,
	}
}
