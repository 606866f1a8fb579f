package engine

import (
	"context"
	"fmt"

	"github.com/stagehand-dev/stagehand/internal/budget"
	"github.com/stagehand-dev/stagehand/pkg/models"
)

// Resume re-enters the verification loop for a delegated task left running
// by a transport failure. The consumed repair budget carries over.
func (e *Engine) Resume(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := e.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusRunning || task.Mode != models.ModeDelegated {
		return nil, fmt.Errorf("%w: task %q is not a running delegated task", ErrInvalidState, task.Name)
	}
	return e.runDelegated(ctx, task)
}

// runDelegated drives execute, verify and repair until the output is
// accepted or the repair budget is spent.
//
// A failed verification consumes one repair attempt before the bound is
// checked, so a task whose attempts are exhausted has made exactly
// repairLimit delegate calls.
func (e *Engine) runDelegated(ctx context.Context, task *models.Task) (*models.Task, error) {
	view, err := e.store.DelegateView(task.ID)
	if err != nil {
		return nil, err
	}
	expected := view.Task.ExpectedOutput
	if len(expected) == 0 {
		expected = []string{view.Task.Description}
	}

	prompt := e.executionPrompt(view)
	attempt := view.Task.IterationCount
	for {
		output, err := e.exec.Execute(ctx, prompt)
		if err != nil {
			return nil, &ExecutionError{TaskID: task.ID, Err: err}
		}

		verdict, err := e.verifier.Verify(ctx, output, expected)
		if err != nil {
			return nil, &ExecutionError{TaskID: task.ID, Err: fmt.Errorf("verify: %w", err)}
		}
		e.recordVerdict(task.ID, attempt, verdict)

		if verdict.Overall {
			final, err := e.accept(task.ID, output, verdict)
			if err != nil {
				return nil, err
			}
			e.logf("task %s completed after %d repair(s)", task.ID, final.IterationCount)
			return final, nil
		}

		final, exhausted, err := e.reject(task.ID, verdict)
		if err != nil {
			return nil, err
		}
		attempt = final.IterationCount
		if exhausted {
			e.logf("task %s failed: repair budget spent", task.ID)
			return final, fmt.Errorf("task %q: %w", final.Name, ErrVerificationExhausted)
		}

		e.logf("task %s repair %d/%d", task.ID, final.IterationCount, e.repairLimit)
		prompt = e.repairPrompt(view, output, verdict)
	}
}

// accept commits an approved output. The stored output is budgeted; the
// delegate's full text never lands in the snapshot file.
func (e *Engine) accept(taskID, output string, verdict models.VerificationResult) (*models.Task, error) {
	var final *models.Task
	var listID string
	var version int
	err := e.store.Update(taskID, func(list *models.TaskList, task *models.Task) error {
		task.Status = models.TaskStatusCompleted
		task.ActualOutput = budget.Truncate(output, e.outputBudget)
		v := verdict.Clone()
		task.Verdict = &v
		final = task.Clone()
		listID = list.ID
		version = list.Version + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.recordTransition(listID, final, models.TaskStatusRunning, models.TaskStatusCompleted, version)
	return final, nil
}

// reject consumes one repair attempt and fails the task once the bound is
// reached. The last verdict is retained for diagnostics either way.
func (e *Engine) reject(taskID string, verdict models.VerificationResult) (*models.Task, bool, error) {
	var final *models.Task
	var listID string
	var version int
	exhausted := false
	err := e.store.Update(taskID, func(list *models.TaskList, task *models.Task) error {
		v := verdict.Clone()
		task.Verdict = &v
		task.IterationCount++
		if task.IterationCount >= e.repairLimit {
			task.Status = models.TaskStatusFailed
			exhausted = true
		}
		final = task.Clone()
		listID = list.ID
		version = list.Version + 1
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if exhausted {
		e.recordTransition(listID, final, models.TaskStatusRunning, models.TaskStatusFailed, version)
	}
	return final, exhausted, nil
}
