package engine

import (
	"fmt"
	"strings"

	"github.com/stagehand-dev/stagehand/internal/budget"
	"github.com/stagehand-dev/stagehand/pkg/models"
)

// minDependencyQuota is the floor for per-dependency context, so a long goal
// or many dependencies never squeeze an output to nothing.
const minDependencyQuota = 512

// executionPrompt renders the delegate's working brief: the list goal, the
// task itself, and the published outputs of completed dependencies. Each
// dependency output gets an equal share of the budget left after the goal
// and background, middle-truncated when it runs over.
func (e *Engine) executionPrompt(view *models.DelegateView) string {
	var b strings.Builder
	b.WriteString("You are completing one task within a larger plan.\n\n")
	fmt.Fprintf(&b, "Main goal: %s\n", view.MainGoal)
	if view.Background != "" {
		fmt.Fprintf(&b, "Background: %s\n", view.Background)
	}

	task := view.Task
	fmt.Fprintf(&b, "\nTask: %s\n", task.Name)
	fmt.Fprintf(&b, "Description: %s\n", task.Description)
	if task.AdditionalInfo != "" {
		fmt.Fprintf(&b, "Context: %s\n", task.AdditionalInfo)
	}

	if len(view.Dependencies) > 0 {
		quota := e.dependencyQuota(view)
		b.WriteString("\nOutputs of completed prerequisite tasks:\n")
		for _, dep := range view.Dependencies {
			fmt.Fprintf(&b, "\n### %s\n%s\n", dep.Name, budget.TruncateMarked(dep.Output, quota))
		}
	}

	b.WriteString("\nProduce the deliverable described above and reply with the complete result.\n")
	return b.String()
}

// repairPrompt extends the working brief with the rejected attempt and the
// verifier's objections.
func (e *Engine) repairPrompt(view *models.DelegateView, previous string, verdict models.VerificationResult) string {
	var b strings.Builder
	b.WriteString(e.executionPrompt(view))
	b.WriteString("\nYour previous attempt was rejected by verification.\n")
	fmt.Fprintf(&b, "\nPrevious output:\n%s\n", budget.TruncateMarked(previous, e.outputBudget))

	b.WriteString("\nUnsatisfied requirements:\n")
	for _, item := range verdict.Failures() {
		note := item.Note
		if note == "" {
			note = "requirement not met"
		}
		fmt.Fprintf(&b, "- %s\n", note)
	}
	b.WriteString("\nFix these problems and reply with a corrected, complete result.\n")
	return b.String()
}

func (e *Engine) dependencyQuota(view *models.DelegateView) int {
	available := e.outputBudget - len(view.MainGoal) - len(view.Background)
	quota := available / len(view.Dependencies)
	if quota < minDependencyQuota {
		quota = minDependencyQuota
	}
	return quota
}
