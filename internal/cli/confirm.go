package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
)

var (
	confirmAction   string
	confirmDeny     bool
	confirmResponse string
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <task-id>",
	Short: "Answer a task's confirmation request",
	Long: `Approve or deny a step that is waiting for confirmation.

The action name is shown when the request arrives, for example in
'cowork watch' output.

Examples:
  cowork confirm 3f2a9c --action delete_file
  cowork confirm 3f2a9c --action delete_file --deny
  cowork confirm 3f2a9c --action ask_user --response "Use the March folder"`,
	Args: cobra.ExactArgs(1),
	RunE: runConfirm,
}

func init() {
	confirmCmd.Flags().StringVar(&confirmAction, "action", "", "Action being confirmed (required)")
	confirmCmd.Flags().BoolVar(&confirmDeny, "deny", false, "Deny the action instead of approving it")
	confirmCmd.Flags().StringVar(&confirmResponse, "response", "", "Free-text response for the task")
	_ = confirmCmd.MarkFlagRequired("action")
	rootCmd.AddCommand(confirmCmd)
}

func runConfirm(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	req := api.ConfirmationRequest{
		TaskID:    args[0],
		Action:    confirmAction,
		Confirmed: !confirmDeny,
		Response:  confirmResponse,
	}
	if err := client.Confirm(cmd.Context(), req); err != nil {
		return err
	}

	verb := "Approved"
	if confirmDeny {
		verb = "Denied"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s for task %s\n", verb, confirmAction, req.TaskID)
	return nil
}
