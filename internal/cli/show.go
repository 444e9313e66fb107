package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/task"
)

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task's details",
	Long: `Fetch a task's details and live status from the backend and record
them in local history.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.coord.Refresh(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), t, func(w io.Writer) error {
		return printTask(w, t)
	})
}

func printTask(w io.Writer, t *task.Task) error {
	fmt.Fprintf(w, "Task:      %s\n", t.ID)
	fmt.Fprintf(w, "Goal:      %s\n", t.Goal)
	fmt.Fprintf(w, "Status:    %s\n", colorStatus(string(t.Status)))
	if p := t.Progress; p != nil && p.TotalSteps > 0 {
		fmt.Fprintf(w, "Progress:  step %d/%d (%.0f%%)\n", p.CurrentStep, p.TotalSteps, p.Percent)
	}
	fmt.Fprintf(w, "Created:   %s\n", formatTime(t.CreatedAt))
	if t.StartedAt != nil {
		fmt.Fprintf(w, "Started:   %s\n", formatTime(*t.StartedAt))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "Completed: %s\n", formatTime(*t.CompletedAt))
	}
	if d := t.Duration(); d > 0 {
		fmt.Fprintf(w, "Duration:  %s\n", formatDuration(d))
	}

	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if t.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", t.Error)
	} else if t.Result != "" {
		fmt.Fprintf(w, "\nResult:\n%s\n", t.Result)
	}

	if len(t.Metadata) > 0 {
		keys := make([]string, 0, len(t.Metadata))
		for k := range t.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "\nMetadata:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, t.Metadata[k])
		}
	}
	return nil
}
