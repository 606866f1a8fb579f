package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stagehand-dev/stagehand/pkg/models"
)

var (
	statusWatch bool
	statusYAML  bool
)

var statusCmd = &cobra.Command{
	Use:   "status [list-id]",
	Short: "Show task list state",
	Long: `Display per-status counts and per-task details for one list, or a
one-line summary of every known list.

With --watch, keeps running and re-renders whenever another process updates
the list's snapshot file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Re-render when the list changes on disk")
	statusCmd.Flags().BoolVar(&statusYAML, "yaml", false, "Emit the full summary as YAML")
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	if len(args) == 0 {
		ids := rt.store.ListIDs()
		if len(ids) == 0 {
			fmt.Println("No task lists. Run 'stagehand run <plan.yaml>' to start.")
			return nil
		}
		for _, id := range ids {
			summary, err := rt.store.GetSummary(id)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  %s\n", color.CyanString(id), countsLine(summary), summary.MainGoal)
		}
		return nil
	}

	listID := args[0]
	if err := renderList(rt, listID); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}

	files, err := rt.fileStore()
	if err != nil {
		return err
	}
	watcher, err := rt.store.Watch(files)
	if err != nil {
		return err
	}
	defer watcher.Close()

	for changed := range watcher.Events() {
		if changed != listID {
			continue
		}
		fmt.Println()
		if err := renderList(rt, listID); err != nil {
			return err
		}
	}
	return nil
}

func renderList(rt *runtime, listID string) error {
	summary, err := rt.store.GetSummary(listID)
	if err != nil {
		return err
	}

	if statusYAML {
		out, err := yaml.Marshal(summary)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("%s  v%d  %s\n", color.CyanString(summary.ListID), summary.Version, summary.MainGoal)
	fmt.Printf("%s\n\n", countsLine(summary))
	for _, t := range summary.Tasks {
		fmt.Printf("  %s %s", statusGlyph(t.Status), t.Name)
		if len(t.Dependencies) > 0 {
			fmt.Printf("  (%d deps)", len(t.Dependencies))
		}
		fmt.Println()
	}
	return nil
}

func countsLine(s *models.ListSummary) string {
	return fmt.Sprintf("%s %d  %s %d  %s %d  %s %d  %s %d",
		color.WhiteString("pending"), s.Pending,
		color.BlueString("running"), s.Running,
		color.GreenString("completed"), s.Completed,
		color.RedString("failed"), s.Failed,
		color.YellowString("abandoned"), s.Abandoned)
}

func statusGlyph(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusRunning:
		return color.BlueString("▶")
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusAbandoned:
		return color.YellowString("⊘")
	default:
		return "·"
	}
}
