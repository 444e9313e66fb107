package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
)

var (
	auditTask   string
	auditLimit  int
	auditOffset int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the backend's audit log",
	Long: `Show actions the backend performed on behalf of tasks.

Examples:
  cowork audit
  cowork audit --task 3f2a9c
  cowork audit --limit 100 -o yaml`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditTask, "task", "", "Only entries for this task")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum number of entries")
	auditCmd.Flags().IntVar(&auditOffset, "offset", 0, "Number of entries to skip")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	log, err := client.Audit(cmd.Context(), api.AuditOptions{
		Limit:  auditLimit,
		Offset: auditOffset,
		TaskID: auditTask,
	})
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), log, func(w io.Writer) error {
		return printAudit(w, log)
	})
}

func printAudit(w io.Writer, log *api.AuditLog) error {
	if len(log.Entries) == 0 {
		fmt.Fprintln(w, "No audit entries.")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tTASK\tACTION\tSTATUS\tRESOURCE")
	fmt.Fprintln(tw, "----\t----\t------\t------\t--------")
	for _, e := range log.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			formatTime(api.ParseTime(e.Timestamp)),
			e.TaskID,
			e.Action,
			colorStatus(e.Status),
			truncate(e.Resource, 50),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if log.Total > len(log.Entries) {
		fmt.Fprintf(w, "\nShowing %d of %d entries\n", len(log.Entries), log.Total)
	}
	return nil
}
