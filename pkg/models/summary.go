package models

// TaskSummary is the per-task slice of a list summary.
type TaskSummary struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	Status       TaskStatus `json:"status" yaml:"status"`
	Priority     int        `json:"priority" yaml:"priority"`
	Dependencies []string   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	ActualOutput string     `json:"actual_output,omitempty" yaml:"actual_output,omitempty"`
}

// ListSummary reports per-status counts and per-task details for one list.
type ListSummary struct {
	ListID    string        `json:"list_id" yaml:"list_id"`
	Owner     string        `json:"owner" yaml:"owner"`
	MainGoal  string        `json:"main_goal" yaml:"main_goal"`
	Version   int           `json:"version" yaml:"version"`
	Total     int           `json:"total" yaml:"total"`
	Pending   int           `json:"pending" yaml:"pending"`
	Running   int           `json:"running" yaml:"running"`
	Completed int           `json:"completed" yaml:"completed"`
	Failed    int           `json:"failed" yaml:"failed"`
	Abandoned int           `json:"abandoned" yaml:"abandoned"`
	Tasks     []TaskSummary `json:"tasks" yaml:"tasks"`
}

// DependencyOutput is a completed dependency's published output.
type DependencyOutput struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

// DelegateView is the restricted view of a task handed to an execution
// delegate: the task's own record, the list's goal and background, and the
// published output of its completed dependencies. Sibling tasks' internal
// fields are never exposed.
type DelegateView struct {
	ListID       string             `json:"list_id"`
	MainGoal     string             `json:"main_goal"`
	Background   string             `json:"background,omitempty"`
	Task         *Task              `json:"task"`
	Dependencies []DependencyOutput `json:"dependencies,omitempty"`
}
