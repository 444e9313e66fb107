package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
	"github.com/bkonkle/cowork/internal/task"
)

var planDescription string

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Create a plan for a new task",
	Long: `Ask the backend to plan a task without running it.

The plan's steps are printed along with the new task id, which can be
passed to 'cowork execute'.

Examples:
  cowork plan "Summarize the Q4 notes in ~/Documents"
  cowork plan "Rename screenshots by date" -d "Only files in ~/Desktop"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planDescription, "description", "d", "", "Additional context for the planner")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	draft := task.Draft{Goal: strings.Join(args, " "), Description: planDescription}
	plan, _, err := a.coord.Plan(cmd.Context(), draft)
	if err != nil {
		return draftError(err)
	}

	return render(cmd.OutOrStdout(), plan, func(w io.Writer) error {
		return printPlan(w, plan)
	})
}

func printPlan(w io.Writer, p *api.Plan) error {
	fmt.Fprintf(w, "Task:  %s\n", p.TaskID)
	fmt.Fprintf(w, "Goal:  %s\n", p.Goal)
	if p.EstimatedTokens > 0 || p.EstimatedDurationMin > 0 {
		fmt.Fprintf(w, "Estimate: ~%d tokens, ~%d min\n", p.EstimatedTokens, p.EstimatedDurationMin)
	}
	fmt.Fprintln(w)

	if len(p.Steps) == 0 {
		fmt.Fprintln(w, "The plan has no steps.")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "STEP\tACTION\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t------\t-----------")
	for _, s := range p.Steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Step, s.Action, truncate(s.Description, 70))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nRun it with:\n  cowork execute %s\n", p.TaskID)
	return nil
}

// draftError turns draft validation failures into a readable message.
func draftError(err error) error {
	var verrs task.ValidationErrors
	if errors.As(err, &verrs) {
		return fmt.Errorf("invalid task: %w", verrs)
	}
	return err
}
