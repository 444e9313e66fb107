package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bkonkle/cowork/internal/api"
)

var policyFile string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "View or update the backend's execution policy",
}

var policyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current policy",
	Args:  cobra.NoArgs,
	RunE:  runPolicyGet,
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the policy from a YAML or JSON file",
	Long: `Replace the backend's execution policy.

The file uses the same shape 'cowork policy get -o yaml' prints:

  folders:
    - path: ~/Documents
      permissions: [read, write]
  tools:
    shell:
      enabled: false
  max_tokens_per_task: 50000
  max_execution_time_seconds: 600
  allow_network: false`,
	Args: cobra.NoArgs,
	RunE: runPolicySet,
}

func init() {
	policySetCmd.Flags().StringVarP(&policyFile, "file", "f", "", "Policy file (required)")
	_ = policySetCmd.MarkFlagRequired("file")
	policyCmd.AddCommand(policyGetCmd, policySetCmd)
	rootCmd.AddCommand(policyCmd)
}

func runPolicyGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	p, err := client.GetPolicy(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), p, func(w io.Writer) error {
		return printPolicy(w, p)
	})
}

func runPolicySet(cmd *cobra.Command, args []string) error {
	p, err := readPolicy(policyFile)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.UpdatePolicy(cmd.Context(), p); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Policy updated.")
	return nil
}

// readPolicy parses a policy file. YAML is a superset of JSON, so both work.
func readPolicy(path string) (*api.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var p api.Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return &p, nil
}

func printPolicy(w io.Writer, p *api.Policy) error {
	fmt.Fprintf(w, "Max tokens per task:    %d\n", p.MaxTokensPerTask)
	fmt.Fprintf(w, "Max execution time:     %ds\n", p.MaxExecutionTimeSeconds)
	fmt.Fprintf(w, "Network access allowed: %t\n", p.AllowNetwork)

	if len(p.Folders) > 0 {
		fmt.Fprintln(w, "\nFolders:")
		for _, f := range p.Folders {
			fmt.Fprintf(w, "  - %v", f["path"])
			if perms, ok := f["permissions"]; ok {
				fmt.Fprintf(w, " %v", perms)
			}
			fmt.Fprintln(w)
		}
	}

	if len(p.Tools) > 0 {
		fmt.Fprintln(w, "\nTools:")
		tw := newTable(w)
		for name, settings := range p.Tools {
			fmt.Fprintf(tw, "  %s\t%v\n", name, settings)
		}
		return tw.Flush()
	}
	return nil
}
