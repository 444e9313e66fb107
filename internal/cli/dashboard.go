package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
	"github.com/bkonkle/cowork/internal/tui"
)

var dashboardMetricsAddr string

var dashboardCmd = &cobra.Command{
	Use:     "dashboard [task-id...]",
	Aliases: []string{"dash", "ui"},
	Short:   "Open the interactive task dashboard",
	Long: `Open a terminal dashboard showing tasks, their live progress and
pending confirmation requests.

Task ids given as arguments are watched live. History is merged from the
backend on start when it is reachable.

Keys:
  ↑/↓ j/k   select task        enter   details
  y / n     approve / deny     x       cancel task
  r         refresh task       H       toggle history
  tab       switch pane        ?       help
  q         quit`,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.coord.LoadHistory(ctx, api.ListOptions{Limit: a.cfg.Store.HistoryCap}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load history from backend: %v\n", err)
	}

	for _, id := range args {
		go func(id string) {
			if err := a.coord.Watch(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: watching %s: %v\n", id, err)
			}
		}(id)
	}

	serveMetrics(ctx, dashboardMetricsAddr, a.metrics)

	changes, stop := tui.Listen(a.store, 256)
	defer stop()

	p := tea.NewProgram(tui.NewModel(a.store, a.coord, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
