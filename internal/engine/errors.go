package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingContext indicates a task has no execution context yet.
	// Context is attached after creation; dispatch refuses until it exists.
	ErrMissingContext = errors.New("task has no execution context")
	// ErrInvalidState indicates the task is not in a status that permits the
	// requested transition.
	ErrInvalidState = errors.New("invalid task state for operation")
	// ErrConcurrencyConflict indicates another task in the same list is
	// already running. One task per list runs at a time.
	ErrConcurrencyConflict = errors.New("another task in the list is running")
	// ErrCompletedImmutable indicates an attempt to change a completed task.
	// Completed tasks and their outputs are frozen.
	ErrCompletedImmutable = errors.New("completed task is immutable")
	// ErrVerificationExhausted indicates the repair budget was spent without
	// an accepted output.
	ErrVerificationExhausted = errors.New("verification attempts exhausted")
)

// PreconditionError reports the dependencies that block a task from running.
type PreconditionError struct {
	TaskID string
	Name   string
	Unmet  []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("task %q blocked by incomplete dependencies: %s",
		e.Name, strings.Join(e.Unmet, ", "))
}

// ExecutionError wraps a delegate transport failure. The task stays running
// and its repair budget is untouched; the caller may retry or abandon.
type ExecutionError struct {
	TaskID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute task %s: %v", e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
