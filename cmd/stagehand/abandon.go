package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var abandonCmd = &cobra.Command{
	Use:   "abandon <task-id>",
	Short: "Give up on a task",
	Long: `Mark a task abandoned. Works from any state except completed;
completed tasks and their outputs are immutable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(true)
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.engine.Abandon(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s abandoned %s\n", color.YellowString("⊘"), args[0])
		return nil
	},
}
