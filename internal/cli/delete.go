package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:     "delete <task-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task from the backend and local history",
	Args:    cobra.ExactArgs(1),
	RunE:    runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete without asking")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]

	if !deleteForce {
		if !isTTY(os.Stdin) {
			return fmt.Errorf("refusing to delete %s without confirmation; pass --force", id)
		}
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Delete task %s", id),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			return err
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", id)
	return nil
}
