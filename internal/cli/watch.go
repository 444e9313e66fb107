package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	watchYes         bool
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Follow a running task's progress",
	Long: `Attach to a task's event channel and print its progress until it
finishes. If the channel cannot be opened the task is polled instead.

Examples:
  cowork watch 3f2a9c
  cowork watch 3f2a9c --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchYes, "yes", "y", false, "Approve every confirmation request")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id := args[0]
	if _, err := a.coord.Refresh(ctx, id); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching task %s (Ctrl+C to stop)\n", id)

	serveMetrics(ctx, watchMetricsAddr, a.metrics)
	final, err := follow(ctx, out, a.store, a.coord, id, followOptions{
		autoApprove: watchYes,
		ask:         promptAsk(),
	})
	return finalError(final, err)
}
