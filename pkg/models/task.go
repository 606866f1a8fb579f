package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is being worked on.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished and its output was accepted.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task exhausted its repair attempts.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusAbandoned indicates the task was explicitly given up on.
	TaskStatusAbandoned TaskStatus = "abandoned"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusAbandoned:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this
// status, except the Abandoned override which applies to everything but
// Completed.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusAbandoned:
		return true
	default:
		return false
	}
}

// ExecutionMode determines who performs a task's work.
type ExecutionMode string

const (
	// ModePrimary means the coordinating caller executes the task itself
	// and reports the outcome directly. No delegate, no verification loop.
	ModePrimary ExecutionMode = "primary"
	// ModeDelegated means the engine dispatches the task to an execution
	// delegate and independently verifies the claimed output.
	ModeDelegated ExecutionMode = "delegated"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	return m == ModePrimary || m == ModeDelegated
}

// Task represents a unit of work in a task list.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Name is the task's human-readable name, unique within its list.
	// Dependencies may be expressed as names before ids exist.
	Name string `json:"name"`
	// Description provides detailed information about the task.
	Description string `json:"description"`
	// AdditionalInfo is free-text execution context. It must be non-empty
	// before the task can be executed.
	AdditionalInfo string `json:"additional_info,omitempty"`
	// ExpectedOutput is the description broken into discrete, independently
	// checkable requirement strings.
	ExpectedOutput []string `json:"expected_output"`
	// Priority orders ready tasks. Higher runs first; any value is accepted.
	Priority int `json:"priority"`
	// Dependencies lists task IDs that must complete before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// Mode determines whether the caller or a delegate performs the work.
	Mode ExecutionMode `json:"execution_mode"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// ActualOutput is the accepted output, set only on completion.
	ActualOutput string `json:"actual_output,omitempty"`
	// IterationCount is the number of repair attempts consumed.
	IterationCount int `json:"iteration_count"`
	// Verdict is the most recent verification verdict, kept for diagnostics
	// when the task fails.
	Verdict *VerificationResult `json:"verdict,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.ExpectedOutput = append([]string(nil), t.ExpectedOutput...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Verdict != nil {
		v := t.Verdict.Clone()
		c.Verdict = &v
	}
	return &c
}

// TaskList groups related tasks under one goal. A list is owned by exactly
// one coordinating identity and is never deleted, only grown.
type TaskList struct {
	// ID is the unique identifier for this list.
	ID string `json:"id"`
	// Owner is the coordinating identity that created the list.
	Owner string `json:"owner"`
	// MainGoal is the overall objective the tasks serve.
	MainGoal string `json:"main_goal"`
	// Background is shared context provided to every task.
	Background string `json:"background,omitempty"`
	// Tasks maps task id to task. Insertion order is irrelevant.
	Tasks map[string]*Task `json:"tasks"`
	// Version increments on every mutation.
	Version int `json:"version"`
}

// Clone returns a deep copy of the list.
func (l *TaskList) Clone() *TaskList {
	c := *l
	c.Tasks = make(map[string]*Task, len(l.Tasks))
	for id, t := range l.Tasks {
		c.Tasks[id] = t.Clone()
	}
	return &c
}

// TaskByName returns the task with the given name, or nil.
func (l *TaskList) TaskByName(name string) *Task {
	for _, t := range l.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Running returns the currently running task, or nil. At most one task per
// list may be running at any instant.
func (l *TaskList) Running() *Task {
	for _, t := range l.Tasks {
		if t.Status == TaskStatusRunning {
			return t
		}
	}
	return nil
}

// Snapshot is a versioned, durable serialization of a task list's full state.
type Snapshot struct {
	// Version is the list version captured by this snapshot.
	Version int `json:"version"`
	// TakenAt is when the snapshot was created.
	TakenAt time.Time `json:"taken_at"`
	// State is the full list state at the time of the snapshot.
	State *TaskList `json:"state"`
}

// VerificationItem is the verdict for a single expected-output item.
type VerificationItem struct {
	// Pass indicates whether the item was satisfied.
	Pass bool `json:"pass"`
	// Note explains the verdict.
	Note string `json:"note,omitempty"`
}

// VerificationResult is a per-item breakdown plus an overall verdict for one
// verification attempt.
type VerificationResult struct {
	// Items holds one verdict per expected-output item, in order.
	Items []VerificationItem `json:"items"`
	// Overall is true only if every item passed.
	Overall bool `json:"overall"`
	// Raw is the verifier's full response text, retained for diagnostics.
	Raw string `json:"raw,omitempty"`
}

// Clone returns a deep copy of the result.
func (r VerificationResult) Clone() VerificationResult {
	c := r
	c.Items = append([]VerificationItem(nil), r.Items...)
	return c
}

// Failures returns the items that did not pass.
func (r VerificationResult) Failures() []VerificationItem {
	var out []VerificationItem
	for _, it := range r.Items {
		if !it.Pass {
			out = append(out, it)
		}
	}
	return out
}
