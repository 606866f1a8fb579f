package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rollbackList bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback <list-id> [version]",
	Short: "Restore a list from a retained snapshot",
	Long: `Restore a task list to an earlier snapshot. Each list retains its
ten most recent snapshots; use --list to see which versions are available.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackList, "list", false, "List retained snapshot versions instead of restoring")
}

func runRollback(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	listID := args[0]
	if rollbackList || len(args) == 1 {
		snaps, err := rt.store.Snapshots(listID)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Printf("  v%-4d %s\n", s.Version, s.TakenAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	var version int
	if _, err := fmt.Sscanf(args[1], "%d", &version); err != nil {
		return fmt.Errorf("version must be a number: %q", args[1])
	}
	if err := rt.store.Rollback(listID, version); err != nil {
		return err
	}
	fmt.Printf("%s restored %s to v%d\n", color.GreenString("✓"), listID, version)
	return nil
}
