package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
)

var (
	listStatus string
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks on the backend",
	Long: `List tasks known to the backend, newest first.

Examples:
  cowork list
  cowork list --status completed --limit 10
  cowork list -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of tasks")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of tasks to skip")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	page, err := client.ListTasks(cmd.Context(), api.ListOptions{
		Limit:  listLimit,
		Offset: listOffset,
		Status: listStatus,
	})
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), page, func(w io.Writer) error {
		return printTaskPage(w, page)
	})
}

func printTaskPage(w io.Writer, page *api.TaskPage) error {
	if len(page.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tDURATION\tGOAL")
	fmt.Fprintln(tw, "--\t------\t-------\t--------\t----")
	for _, t := range page.Tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.TaskID,
			colorStatus(t.Status),
			formatTime(api.ParseTime(t.CreatedAt)),
			formatMillis(t.DurationMS),
			truncate(t.Goal, 50),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if page.Total > len(page.Tasks) {
		fmt.Fprintf(w, "\nShowing %d of %d tasks\n", len(page.Tasks), page.Total)
	}
	return nil
}
