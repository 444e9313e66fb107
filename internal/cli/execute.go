package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/task"
)

var (
	executeFollow      bool
	executeYes         bool
	executeMetricsAddr string
)

var executeCmd = &cobra.Command{
	Use:   "execute <task-id>",
	Short: "Start executing a planned task",
	Long: `Ask the backend to run a task that was created with 'cowork plan'.

With --follow the command stays attached to the task's event channel,
printing step progress and asking for confirmations until the task
finishes.

Examples:
  cowork execute 3f2a9c
  cowork execute 3f2a9c --follow
  cowork execute 3f2a9c --follow --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runExecute,
}

func init() {
	executeCmd.Flags().BoolVarP(&executeFollow, "follow", "f", false, "Follow progress until the task finishes")
	executeCmd.Flags().BoolVarP(&executeYes, "yes", "y", false, "Approve every confirmation request")
	executeCmd.Flags().StringVar(&executeMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while following")
	rootCmd.AddCommand(executeCmd)
}

func runExecute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id := args[0]
	t, err := a.coord.Execute(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !executeFollow {
		return render(out, t, func(w io.Writer) error {
			fmt.Fprintf(w, "Task %s is %s\n", t.ID, colorStatus(string(t.Status)))
			fmt.Fprintf(w, "\nFollow it with:\n  cowork watch %s\n", t.ID)
			return nil
		})
	}

	serveMetrics(ctx, executeMetricsAddr, a.metrics)
	final, err := follow(ctx, out, a.store, a.coord, id, followOptions{
		autoApprove: executeYes,
		ask:         promptAsk(),
	})
	return finalError(final, err)
}

// finalError turns a failed or cancelled task into a command error so the
// exit status reflects the outcome. Interrupting the follow is not an error.
func finalError(t *task.Task, err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	switch t.Status {
	case task.StatusFailed:
		return fmt.Errorf("task %s failed", t.ID)
	case task.StatusCancelled:
		return fmt.Errorf("task %s was cancelled", t.ID)
	}
	return nil
}
