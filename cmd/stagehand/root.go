package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/delegate"
	"github.com/stagehand-dev/stagehand/internal/engine"
	"github.com/stagehand-dev/stagehand/internal/state"
	"github.com/stagehand-dev/stagehand/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Task graph orchestration with independent verification",
	Long: `Stagehand runs plans of interdependent tasks. Each task is either
worked by the caller or dispatched to an execution delegate, whose claimed
output is judged by an independent verifier. Rejected outputs get a bounded
number of repair attempts before the task fails.

State is snapshotted to disk on every mutation and survives restarts.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(abandonCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

// runtime bundles the store and engine a command works against.
type runtime struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
	log    *engine.DebugLogger
	audit  *state.DB
}

// openRuntime loads config and wires the store, delegates and engine.
// With dryRun set, local stand-in delegates replace the API-backed ones.
func openRuntime(dryRun bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := engine.NewDebugLogger(cfg.DebugLog)
	if err != nil {
		return nil, err
	}

	files, err := store.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(files, store.WithLogger(log.Component("store")))
	if err != nil {
		return nil, err
	}

	var exec engine.ExecutionDelegate
	var verify engine.VerificationDelegate
	if dryRun {
		exec = delegate.LocalExecutor{}
		verify = delegate.LocalVerifier{}
	} else {
		client, err := delegate.NewClient(delegate.ClientConfig{
			APIKey: cfg.Anthropic.APIKey,
			Model:  cfg.Anthropic.Model,
		})
		if err != nil {
			return nil, err
		}
		exec = delegate.NewExecutor(client)
		verify = delegate.NewVerifier(client)
	}

	opts := []engine.EngineOption{
		engine.WithLogger(log),
		engine.WithRepairLimit(cfg.Engine.RepairLimit),
		engine.WithOutputBudget(cfg.Engine.OutputBudget),
	}

	rt := &runtime{cfg: cfg, store: st, log: log}
	if cfg.Audit.Enabled {
		path := cfg.Audit.Path
		if path == "" {
			path = state.DefaultPath()
		}
		db, err := state.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		rt.audit = db
		opts = append(opts, engine.WithAudit(db))
	}

	rt.engine = engine.New(st, exec, verify, opts...)
	return rt, nil
}

// close releases the runtime's file handles.
func (rt *runtime) close() {
	if rt.audit != nil {
		rt.audit.Close()
	}
	rt.log.Close()
}

// fileStore reopens the configured snapshot directory for watch mode.
func (rt *runtime) fileStore() (*store.FileStore, error) {
	return store.NewFileStore(rt.cfg.Storage.DataDir)
}
