package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	h, err := client.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("backend at %s is unreachable: %w", client.BaseURL, err)
	}
	return render(cmd.OutOrStdout(), h, func(w io.Writer) error {
		fmt.Fprintf(w, "Backend: %s\n", client.BaseURL)
		fmt.Fprintf(w, "Status:  %s\n", colorStatus(h.Status))
		if h.Version != "" {
			fmt.Fprintf(w, "Version: %s\n", h.Version)
		}
		return nil
	})
}
