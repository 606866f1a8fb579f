// Package graph validates task dependency graphs and computes readiness.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/stagehand-dev/stagehand/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ValidateAcyclic checks the dependency edges for cycles using depth-first
// search with a recursion-stack set. Any node revisited while still on the
// stack is a back edge. The edges map task id to the ids it depends on and
// must already be fully resolved (no dangling references).
func ValidateAcyclic(edges map[string][]string) error {
	// Color states: 0 = unvisited, 1 = on the recursion stack, 2 = done.
	colors := make(map[string]int, len(edges))

	var visit func(id string) error
	visit = func(id string) error {
		colors[id] = 1
		for _, dep := range edges[id] {
			switch colors[dep] {
			case 1:
				return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, id, dep)
			case 0:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		colors[id] = 2
		return nil
	}

	// Iterate in sorted order so error messages are deterministic.
	ids := make([]string, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if colors[id] == 0 {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnmetDependencies returns the names of the task's dependencies that are not
// yet completed, in sorted order. An empty result means the task is ready.
// Unknown dependency ids are reported by id.
func UnmetDependencies(task *models.Task, list *models.TaskList) []string {
	var unmet []string
	for _, depID := range task.Dependencies {
		dep, ok := list.Tasks[depID]
		if !ok {
			unmet = append(unmet, depID)
			continue
		}
		if dep.Status != models.TaskStatusCompleted {
			unmet = append(unmet, dep.Name)
		}
	}
	sort.Strings(unmet)
	return unmet
}

// IsReady reports whether every dependency of the task is completed.
func IsReady(task *models.Task, list *models.TaskList) bool {
	return len(UnmetDependencies(task, list)) == 0
}
