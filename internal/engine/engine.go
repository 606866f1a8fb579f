// Package engine dispatches tasks and drives the delegated
// execute-verify-repair loop.
package engine

import (
	"context"
	"fmt"

	"github.com/stagehand-dev/stagehand/internal/budget"
	"github.com/stagehand-dev/stagehand/internal/graph"
	"github.com/stagehand-dev/stagehand/internal/store"
	"github.com/stagehand-dev/stagehand/pkg/models"
)

const (
	// defaultRepairLimit is how many failed verifications a task absorbs
	// before it is marked failed.
	defaultRepairLimit = 3
	// defaultOutputBudget bounds stored outputs and the dependency context
	// packed into delegate prompts, in characters.
	defaultOutputBudget = 8000
)

// AuditTrail records task lifecycle events durably, independent of the
// snapshot store. Implementations must be safe for concurrent use.
type AuditTrail interface {
	RecordTransition(listID, taskID string, from, to models.TaskStatus, version int) error
	RecordVerdict(taskID string, attempt int, overall bool, raw string) error
}

// Engine coordinates task dispatch: preflight checks, the single-runner
// rule, and the delegated verification loop.
type Engine struct {
	store    *store.Store
	exec     ExecutionDelegate
	verifier VerificationDelegate
	audit    AuditTrail
	logf     Logf

	repairLimit  int
	outputBudget int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAudit attaches an audit trail.
func WithAudit(a AuditTrail) EngineOption {
	return func(e *Engine) { e.audit = a }
}

// WithLogger attaches a debug logger.
func WithLogger(l *DebugLogger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logf = l.Component("engine")
		}
	}
}

// WithRepairLimit overrides the repair attempt bound.
func WithRepairLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.repairLimit = n
		}
	}
}

// WithOutputBudget overrides the output character budget.
func WithOutputBudget(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.outputBudget = n
		}
	}
}

// New creates an engine over the store and delegates.
func New(st *store.Store, exec ExecutionDelegate, verifier VerificationDelegate, opts ...EngineOption) *Engine {
	e := &Engine{
		store:        st,
		exec:         exec,
		verifier:     verifier,
		logf:         func(string, ...interface{}) {},
		repairLimit:  defaultRepairLimit,
		outputBudget: defaultOutputBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetContext attaches execution context to a task. Tasks cannot be
// dispatched until context exists.
func (e *Engine) SetContext(taskID, info string) error {
	return e.store.Update(taskID, func(_ *models.TaskList, task *models.Task) error {
		if task.Status == models.TaskStatusCompleted {
			return fmt.Errorf("%w: %s", ErrCompletedImmutable, task.Name)
		}
		if task.Status.Terminal() {
			return fmt.Errorf("%w: task %q is %s", ErrInvalidState, task.Name, task.Status)
		}
		task.AdditionalInfo = info
		return nil
	})
}

// Execute dispatches a task. Preflight checks run in a fixed order and the
// transition to running commits atomically with them, so two racing callers
// cannot both start work in one list.
//
// Primary tasks return immediately once running; the caller performs the
// work and calls Report. Delegated tasks run the full execute-verify-repair
// loop and return in a terminal state, or still running after a transport
// failure.
func (e *Engine) Execute(ctx context.Context, taskID string) (*models.Task, error) {
	started, err := e.begin(taskID)
	if err != nil {
		return nil, err
	}
	e.logf("task %s (%s) running, mode=%s", started.ID, started.Name, started.Mode)

	if started.Mode == models.ModePrimary {
		return started, nil
	}
	return e.runDelegated(ctx, started)
}

// begin runs the preflight checks and transitions pending to running, all
// under the list lock.
func (e *Engine) begin(taskID string) (*models.Task, error) {
	var started *models.Task
	var listID string
	var version int
	err := e.store.Update(taskID, func(list *models.TaskList, task *models.Task) error {
		if task.AdditionalInfo == "" {
			return fmt.Errorf("%w: %s", ErrMissingContext, task.Name)
		}
		if unmet := graph.UnmetDependencies(task, list); len(unmet) > 0 {
			return &PreconditionError{TaskID: task.ID, Name: task.Name, Unmet: unmet}
		}
		switch task.Status {
		case models.TaskStatusPending:
		case models.TaskStatusCompleted:
			return fmt.Errorf("%w: %s", ErrCompletedImmutable, task.Name)
		default:
			return fmt.Errorf("%w: task %q is %s", ErrInvalidState, task.Name, task.Status)
		}
		if running := list.Running(); running != nil {
			return fmt.Errorf("%w: %q", ErrConcurrencyConflict, running.Name)
		}
		task.Status = models.TaskStatusRunning
		started = task.Clone()
		listID = list.ID
		// The store commits this mutation as the next list version.
		version = list.Version + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.recordTransition(listID, started, models.TaskStatusPending, models.TaskStatusRunning, version)
	return started, nil
}

// Report records the outcome of a primary task worked by the caller.
func (e *Engine) Report(taskID string, ok bool, output string) error {
	from := models.TaskStatusRunning
	to := models.TaskStatusFailed
	if ok {
		to = models.TaskStatusCompleted
	}
	var listID string
	var reported *models.Task
	var version int
	err := e.store.Update(taskID, func(list *models.TaskList, task *models.Task) error {
		if task.Status == models.TaskStatusCompleted {
			return fmt.Errorf("%w: %s", ErrCompletedImmutable, task.Name)
		}
		if task.Status != models.TaskStatusRunning {
			return fmt.Errorf("%w: task %q is %s, not running", ErrInvalidState, task.Name, task.Status)
		}
		task.Status = to
		if ok {
			task.ActualOutput = budget.Truncate(output, e.outputBudget)
		}
		listID = list.ID
		reported = task.Clone()
		version = list.Version + 1
		return nil
	})
	if err != nil {
		return err
	}
	e.recordTransition(listID, reported, from, to, version)
	return nil
}

// Abandon gives up on a task. Allowed from any state except completed;
// abandoning an abandoned task is a no-op.
func (e *Engine) Abandon(taskID string) error {
	var listID string
	var from models.TaskStatus
	var abandoned *models.Task
	var version int
	err := e.store.Update(taskID, func(list *models.TaskList, task *models.Task) error {
		if task.Status == models.TaskStatusCompleted {
			return fmt.Errorf("%w: %s", ErrCompletedImmutable, task.Name)
		}
		if task.Status == models.TaskStatusAbandoned {
			return nil
		}
		from = task.Status
		task.Status = models.TaskStatusAbandoned
		listID = list.ID
		abandoned = task.Clone()
		version = list.Version + 1
		return nil
	})
	if err != nil {
		return err
	}
	if abandoned != nil {
		e.recordTransition(listID, abandoned, from, models.TaskStatusAbandoned, version)
	}
	return nil
}

func (e *Engine) recordTransition(listID string, task *models.Task, from, to models.TaskStatus, version int) {
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordTransition(listID, task.ID, from, to, version); err != nil {
		e.logf("audit transition %s: %v", task.ID, err)
	}
}

func (e *Engine) recordVerdict(taskID string, attempt int, verdict models.VerificationResult) {
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordVerdict(taskID, attempt, verdict.Overall, verdict.Raw); err != nil {
		e.logf("audit verdict %s: %v", taskID, err)
	}
}
