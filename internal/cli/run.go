package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/task"
)

var (
	runDescription string
	runYes         bool
	runNoFollow    bool
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan a task, execute it and follow its progress",
	Long: `Plan and execute a task in one step.

The plan is printed first and must be approved before the task starts; the
task is then followed until it finishes. Without a terminal the task is left
planned. --yes approves the plan and every confirmation request.

Examples:
  cowork run "Organize ~/Downloads by file type"
  cowork run "Clean up old logs" --yes
  cowork run "Draft a weekly report" --no-follow`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runDescription, "description", "d", "", "Additional context for the planner")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Approve the plan and every confirmation request")
	runCmd.Flags().BoolVar(&runNoFollow, "no-follow", false, "Return once the task has started")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while following")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	draft := task.Draft{Goal: strings.Join(args, " "), Description: runDescription}
	plan, _, err := a.coord.Plan(ctx, draft)
	if err != nil {
		return draftError(err)
	}
	if err := printPlan(out, plan); err != nil {
		return err
	}
	fmt.Fprintln(out)

	if !runYes {
		ok, err := approvePlan(out)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "Task %s left planned\n", plan.TaskID)
			return nil
		}
	}

	t, err := a.coord.Execute(ctx, plan.TaskID)
	if err != nil {
		return err
	}
	if runNoFollow {
		fmt.Fprintf(out, "Task %s is %s\n", t.ID, colorStatus(string(t.Status)))
		return nil
	}

	serveMetrics(ctx, runMetricsAddr, a.metrics)
	final, err := follow(ctx, out, a.store, a.coord, t.ID, followOptions{
		autoApprove: runYes,
		ask:         promptAsk(),
	})
	return finalError(final, err)
}

// approvePlan asks whether to execute the printed plan. Without a terminal
// nothing is asked and the plan is not approved.
func approvePlan(w io.Writer) (bool, error) {
	if !isTTY(os.Stdin) {
		fmt.Fprintln(w, "stdin is not a terminal; pass --yes to execute without asking")
		return false, nil
	}
	prompt := promptui.Prompt{Label: "Execute plan", IsConfirm: true}
	_, err := prompt.Run()
	if errors.Is(err, promptui.ErrAbort) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
