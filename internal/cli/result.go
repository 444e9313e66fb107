package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
)

var resultCmd = &cobra.Command{
	Use:   "result <task-id>",
	Short: "Show the result of a finished task",
	Args:  cobra.ExactArgs(1),
	RunE:  runResult,
}

func init() {
	rootCmd.AddCommand(resultCmd)
}

func runResult(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	res, err := client.Result(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), res, func(w io.Writer) error {
		return printResult(w, res)
	})
}

func printResult(w io.Writer, r *api.ExecutionResult) error {
	fmt.Fprintf(w, "Task:      %s\n", r.TaskID)
	fmt.Fprintf(w, "Status:    %s\n", colorStatus(r.Status))
	fmt.Fprintf(w, "Duration:  %s\n", formatMillis(r.DurationMS))
	fmt.Fprintf(w, "Completed: %s\n", formatTime(api.ParseTime(r.CompletedAt)))

	if r.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", r.Summary)
	}

	if len(r.StepsExecuted) > 0 {
		fmt.Fprintln(w)
		tw := newTable(w)
		fmt.Fprintln(tw, "STEP\tACTION\tSTATUS\tDETAIL")
		fmt.Fprintln(tw, "----\t------\t------\t------")
		for _, s := range r.StepsExecuted {
			detail := s.Error
			if detail == "" && s.Result != nil {
				detail = fmt.Sprint(s.Result)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Step, s.Action, colorStatus(s.Status), truncate(detail, 60))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	return nil
}
