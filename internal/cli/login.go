package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/bkonkle/cowork/internal/api"
	"github.com/bkonkle/cowork/internal/config"
)

var loginSkipVerify bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the backend URL and API token",
	Long: `Store the backend URL and API token in the global config file
(~/.config/cowork/config.yaml), checking first that the backend answers.

Values given with --api-url and --token are used as is; anything missing is
asked for interactively.

Examples:
  cowork login
  cowork login --api-url https://cowork.example.com --token s3cret`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginSkipVerify, "skip-verify", false, "Save without checking the backend")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	baseURL := apiURLFlag
	token := tokenFlag
	interactive := isTTY(os.Stdin)

	if baseURL == "" {
		if !interactive {
			return errors.New("--api-url is required when stdin is not a terminal")
		}
		current := config.DefaultConfig().API.BaseURL
		if cfg, err := loadConfig(); err == nil {
			current = cfg.API.BaseURL
		}
		prompt := promptui.Prompt{
			Label:    "Backend URL",
			Default:  current,
			Validate: validateURL,
		}
		v, err := prompt.Run()
		if err != nil {
			return err
		}
		baseURL = v
	} else if err := validateURL(baseURL); err != nil {
		return err
	}

	if token == "" && interactive {
		prompt := promptui.Prompt{
			Label: "API token (leave empty for none)",
			Mask:  '*',
		}
		v, err := prompt.Run()
		if err != nil {
			return err
		}
		token = v
	}

	out := cmd.OutOrStdout()
	if !loginSkipVerify {
		client := api.NewClient(baseURL, token)
		client.MaxAttempts = 1
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		h, err := client.Health(ctx)
		if err != nil {
			return fmt.Errorf("backend at %s is unreachable: %w", baseURL, err)
		}
		fmt.Fprintf(out, "Connected to %s (%s)\n", baseURL, h.Status)
	}

	path := config.GlobalConfigPath()
	if err := config.SaveCredentials(path, baseURL, token); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved credentials to %s\n", path)
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("enter an http:// or https:// URL")
	}
	return nil
}
