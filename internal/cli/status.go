package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task's execution status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	st, err := client.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), st, func(w io.Writer) error {
		return printStatus(w, st)
	})
}

func printStatus(w io.Writer, st *api.ExecutionStatus) error {
	fmt.Fprintf(w, "Task:     %s\n", st.TaskID)
	fmt.Fprintf(w, "Status:   %s\n", colorStatus(st.Status))
	if st.TotalSteps > 0 {
		fmt.Fprintf(w, "Progress: step %d/%d (%.0f%%)\n", st.CurrentStep, st.TotalSteps, st.ProgressPercent)
		fmt.Fprintf(w, "Steps:    %d completed, %d failed\n", st.CompletedSteps, st.FailedSteps)
	}
	fmt.Fprintf(w, "Elapsed:  %s\n", formatMillis(st.ElapsedMS))
	return nil
}
