package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/config"
)

var (
	configInitGlobal bool
	configInitForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration files",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the global file, the
project file, COWORK_* environment variables and command-line flags.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a config file with default values, either to ./cowork.yaml or,
with --global, to ~/.config/cowork/config.yaml.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show which config files are read",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitGlobal, "global", false, "Write the global config file")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	shown := *cfg
	if shown.API.Token != "" {
		shown.API.Token = "********"
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), shown)
	}
	return printYAML(cmd.OutOrStdout(), shown)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "cowork.yaml"
	if configInitGlobal {
		path = config.GlobalConfigPath()
	}
	if config.Exists(path) && !configInitForce {
		return fmt.Errorf("%s already exists; pass --force to overwrite", path)
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	global := config.GlobalConfigPath()
	fmt.Fprintf(out, "Global:  %s%s\n", global, missing(global))

	if project := config.FindProjectConfig(); project != "" {
		fmt.Fprintf(out, "Project: %s\n", project)
	} else {
		wd, _ := os.Getwd()
		fmt.Fprintf(out, "Project: none in %s\n", wd)
	}
	return nil
}

func missing(path string) string {
	if config.Exists(path) {
		return ""
	}
	return " (not found)"
}
