package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/state"
)

var auditCmd = &cobra.Command{
	Use:   "audit <task-id>",
	Short: "Show a task's recorded history",
	Long: `Print a task's status transitions and verification verdicts from
the audit database. Requires audit.enabled in the configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Audit.Enabled {
		return fmt.Errorf("audit trail is disabled; set audit.enabled in the configuration")
	}
	path := cfg.Audit.Path
	if path == "" {
		path = state.DefaultPath()
	}

	db, err := state.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	taskID := args[0]
	transitions, err := db.TaskTransitions(taskID)
	if err != nil {
		return err
	}
	verdicts, err := db.TaskVerdicts(taskID)
	if err != nil {
		return err
	}
	if len(transitions) == 0 && len(verdicts) == 0 {
		fmt.Printf("No history for task %s\n", taskID)
		return nil
	}

	if len(transitions) > 0 {
		fmt.Println(color.New(color.Bold).Sprint("Transitions"))
		for _, tr := range transitions {
			fmt.Printf("  %s  %s → %s\n",
				tr.RecordedAt.Local().Format("2006-01-02 15:04:05"), tr.From, tr.To)
		}
	}
	if len(verdicts) > 0 {
		fmt.Println(color.New(color.Bold).Sprint("Verdicts"))
		for _, v := range verdicts {
			mark := color.RedString("FAIL")
			if v.Overall {
				mark = color.GreenString("PASS")
			}
			fmt.Printf("  %s  attempt %d  %s\n",
				v.RecordedAt.Local().Format("2006-01-02 15:04:05"), v.Attempt, mark)
		}
	}
	return nil
}
