package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/logging"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	verbose      bool
	apiURLFlag   string
	tokenFlag    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "cowork",
	Short: "Command-line client for the Cowork task backend",
	Long: `Cowork plans and runs tasks on a Cowork backend and follows their
progress live.

Each task gets its own event channel. Step progress, confirmation requests
and results stream into a local task store; when the channel is unavailable
the client falls back to polling the REST API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetLevel(logging.LevelDebug)
		} else {
			logging.SetLevel(logging.LevelWarn)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cowork %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Backend base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API token (overrides api.token)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information from build flags
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// GetRootCmd returns the root command for testing and subcommand registration
func GetRootCmd() *cobra.Command {
	return rootCmd
}
