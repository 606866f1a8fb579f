package store

import (
	"errors"
	"fmt"
)

// Validation failures reject the call synchronously with no state change.
var (
	// ErrUnknownList indicates the list id does not exist.
	ErrUnknownList = errors.New("unknown task list")
	// ErrUnknownTask indicates the task id does not exist.
	ErrUnknownTask = errors.New("unknown task")
	// ErrEmptyBatch indicates AddTasks was called without tasks.
	ErrEmptyBatch = errors.New("no tasks supplied")
)

// DuplicateNameError indicates a task name collides within its list.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate task name: %q", e.Name)
}

// UnknownDependencyError indicates a dependency reference resolved to neither
// a batch task name nor an existing task.
type UnknownDependencyError struct {
	Task string
	Ref  string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.Task, e.Ref)
}

// InvalidSpecError indicates a malformed task spec in an AddTasks batch.
type InvalidSpecError struct {
	Task   string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("invalid task spec: %s", e.Reason)
	}
	return fmt.Sprintf("invalid task spec %q: %s", e.Task, e.Reason)
}

// PersistenceError indicates a snapshot write failed. The triggering mutation
// is rolled back; in-memory state matches the last successfully persisted
// snapshot.
type PersistenceError struct {
	ListID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist list %s: %v", e.ListID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
