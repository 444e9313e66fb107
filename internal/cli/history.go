package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
	"github.com/bkonkle/cowork/internal/task"
)

var (
	historyClear bool
	historySync  bool
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show locally recorded task history",
	Long: `Show tasks this client has planned, run or looked at, newest first.

History is kept on disk at store.path and capped at store.history_cap
entries.

Examples:
  cowork history
  cowork history --sync
  cowork history --clear`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Forget all local history")
	historyCmd.Flags().BoolVar(&historySync, "sync", false, "Merge the backend's task list into history first")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Number of backend tasks to merge with --sync")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if historyClear {
		a.store.ClearHistory()
		fmt.Fprintln(out, "History cleared.")
		return nil
	}

	if historySync {
		n, err := a.coord.LoadHistory(cmd.Context(), api.ListOptions{Limit: historyLimit})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Merged %d tasks from the backend\n", n)
	}

	tasks := a.store.History()
	return render(out, tasks, func(w io.Writer) error {
		return printHistory(w, tasks)
	})
}

func printHistory(w io.Writer, tasks []*task.Task) error {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks in history.")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tDURATION\tGOAL")
	fmt.Fprintln(tw, "--\t------\t-------\t--------\t----")
	for _, t := range tasks {
		duration := "-"
		if d := t.Duration(); d > 0 {
			duration = formatDuration(d)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			colorStatus(string(t.Status)),
			formatTime(t.CreatedAt),
			duration,
			truncate(t.Goal, 50),
		)
	}
	return tw.Flush()
}
