package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runWorkflowCmd = &cobra.Command{
	Use:   "run-workflow",
	Short: "Run one full grading pass: sync, snapshot, provision, and drive submissions",
	RunE:  runRunWorkflow,
}

func init() {
	rootCmd.AddCommand(runWorkflowCmd)
}

func runRunWorkflow(cmd *cobra.Command, args []string) error {
	runner, _, err := buildRunner()
	if err != nil {
		return err
	}

	summary, err := runner.Run(cmd.Context(), time.Now(), dryRun)
	if err != nil {
		return err
	}

	fmt.Printf("ran %d assignments, %d submissions updated, %d errors\n",
		summary.AssignmentsRun, summary.SubmissionsUpdated, len(summary.Errors))
	for _, e := range summary.Errors {
		fmt.Println("  -", e)
	}
	return nil
}
