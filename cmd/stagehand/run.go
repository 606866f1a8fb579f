package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stagehand-dev/stagehand/internal/engine"
	"github.com/stagehand-dev/stagehand/internal/store"
	"github.com/stagehand-dev/stagehand/pkg/models"
)

var (
	runOwner  string
	runDryRun bool
)

// plan is the YAML input format for a batch of tasks.
type plan struct {
	Goal       string     `yaml:"goal"`
	Background string     `yaml:"background"`
	Tasks      []planTask `yaml:"tasks"`
}

type planTask struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Priority    int      `yaml:"priority"`
	DependsOn   []string `yaml:"depends_on"`
	Mode        string   `yaml:"mode"`
	Context     string   `yaml:"context"`
}

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Load a plan and run its delegated tasks",
	Long: `Load a YAML plan, register its tasks as one atomic batch, and run
every delegated task that becomes ready, in priority order.

Primary-mode tasks are registered but left for the caller; work them and
record the outcome with direct engine calls or abandon them.

Example plan:

  goal: Ship the release
  background: Repo uses make for all builds
  tasks:
    - name: build
      description: Build the binaries for linux and darwin
      priority: 2
      mode: delegated
      context: Run make cross
    - name: changelog
      description: Draft the changelog from merged PRs
      depends_on: [build]
      mode: delegated
      context: Cover everything since v1.4`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runOwner, "owner", "stagehand-cli", "Owner identity for the task list")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Use local stand-in delegates instead of the API")
}

func runRun(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	var p plan
	if err := yaml.Unmarshal(content, &p); err != nil {
		return fmt.Errorf("parse plan: %w", err)
	}
	if p.Goal == "" {
		return fmt.Errorf("plan has no goal")
	}

	rt, err := openRuntime(runDryRun)
	if err != nil {
		return err
	}
	defer rt.close()

	specs := make([]store.TaskSpec, len(p.Tasks))
	for i, t := range p.Tasks {
		mode := models.ExecutionMode(t.Mode)
		if t.Mode == "" {
			mode = models.ModeDelegated
		}
		specs[i] = store.TaskSpec{
			Name:         t.Name,
			Description:  t.Description,
			Priority:     t.Priority,
			Dependencies: t.DependsOn,
			Mode:         mode,
		}
	}

	listID, ids, err := rt.store.AddTasks(runOwner, p.Goal, p.Background, specs)
	if err != nil {
		return fmt.Errorf("register plan: %w", err)
	}
	fmt.Printf("Registered %d tasks on list %s\n", len(ids), color.CyanString(listID))

	for _, t := range p.Tasks {
		info := t.Context
		if info == "" {
			info = t.Description
		}
		if err := rt.engine.SetContext(ids[t.Name], info); err != nil {
			return fmt.Errorf("set context for %q: %w", t.Name, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return drain(ctx, rt, listID)
}

// drain runs ready delegated tasks until none remain or the context ends.
func drain(ctx context.Context, rt *runtime, listID string) error {
	notified := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ready, err := rt.store.ReadyTasks(listID)
		if err != nil {
			return err
		}
		var next *models.Task
		for _, t := range ready {
			if t.Mode == models.ModeDelegated {
				next = t
				break
			}
			// Primary tasks block their own dependents until the caller
			// reports them; keep going for independent delegated work.
			if !notified[t.ID] {
				notified[t.ID] = true
				fmt.Printf("%s %s is primary-mode; report it to unblock its dependents\n",
					color.YellowString("●"), t.Name)
			}
		}
		if next == nil {
			break
		}

		fmt.Printf("%s %s\n", color.BlueString("▶"), next.Name)
		final, err := rt.engine.Execute(ctx, next.ID)
		switch {
		case err == nil:
			fmt.Printf("%s %s (%d repair(s))\n", color.GreenString("✓"), final.Name, final.IterationCount)
		case errors.Is(err, engine.ErrVerificationExhausted):
			fmt.Printf("%s %s: %v\n", color.RedString("✗"), next.Name, err)
		default:
			return err
		}
	}

	summary, err := rt.store.GetSummary(listID)
	if err != nil {
		return err
	}
	fmt.Printf("\n%d completed, %d failed, %d pending, %d abandoned\n",
		summary.Completed, summary.Failed, summary.Pending, summary.Abandoned)
	return nil
}
