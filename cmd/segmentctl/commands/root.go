package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/client"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	env     string
	format  string
	timeout time.Duration
	quiet   bool
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "segmentctl",
	Short: "CLI tool for managing client segments",
	Long: `segmentctl manages client segments in the segments service.

It provides commands for creating, inspecting, updating, and deleting
segments, resolving their members, and moving segment definitions between
environments with import and export.

Examples:
  segmentctl list --env prod
  segmentctl create "Overdue" --condition lastSession:greaterThan:90
  segmentctl members seg-123 --env prod
  segmentctl export --env prod --output segments.yaml
  segmentctl import segments.yaml --env staging`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the segments API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Admin API key")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "Environment from the config file (dev, staging, prod)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}

// newClient resolves the target environment and returns a client for it.
func newClient() (*client.Client, string, error) {
	envCfg, effectiveEnv, err := cli.GetEnvConfig(env, baseURL, apiKey)
	if err != nil {
		return nil, "", fmt.Errorf("configuration error: %w", err)
	}
	flags := rootCmd.PersistentFlags()
	if !flags.Changed("format") && envCfg.Format != "" {
		format = envCfg.Format
	}
	if !flags.Changed("timeout") && envCfg.Timeout > 0 {
		timeout = envCfg.Timeout
	}

	c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)
	c.HTTPClient.Timeout = timeout
	if verbose {
		fmt.Printf("Using environment '%s' (%s)\n", effectiveEnv, c.BaseURL)
	}
	return c, effectiveEnv, nil
}

func outputFormat() (cli.OutputFormat, error) {
	return cli.ParseFormat(format)
}
