package commands

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the segmentctl configuration file at ~/.segmentctl/config.yaml.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.InitConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		configPath, _ := cli.GetConfigPath()
		fmt.Printf("Configuration file created at: %s\n", configPath)
		fmt.Println("Set the admin key for each environment with:")
		fmt.Println("  segmentctl config set prod.api_key <key>")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the configured environments",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Printf("Default environment: %s\n\n", cfg.DefaultEnv)
		for _, name := range slices.Sorted(maps.Keys(cfg.Environments)) {
			envCfg := cfg.Environments[name]
			fmt.Printf("%s:\n  base_url: %s\n  api_key:  %s\n", name, envCfg.BaseURL, maskKey(envCfg.APIKey))
			if envCfg.Format != "" {
				fmt.Printf("  format:   %s\n", envCfg.Format)
			}
			if envCfg.Timeout > 0 {
				fmt.Printf("  timeout:  %s\n", envCfg.Timeout)
			}
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <env.key>",
	Short: "Print a configuration value",
	Long: `Print a configuration value. Keys are base_url, api_key, format and timeout.

Example:
  segmentctl config get dev.base_url`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		envName, key, err := parseConfigKey(args[0])
		if err != nil {
			return err
		}
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		envCfg, ok := cfg.Environments[envName]
		if !ok {
			return fmt.Errorf("environment '%s' not found", envName)
		}
		switch key {
		case "base_url":
			fmt.Println(envCfg.BaseURL)
		case "api_key":
			fmt.Println(envCfg.APIKey)
		case "format":
			fmt.Println(envCfg.Format)
		case "timeout":
			fmt.Println(envCfg.Timeout)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <env.key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value, creating the environment if needed.

Examples:
  segmentctl config set staging.base_url https://segments.staging.internal
  segmentctl config set staging.api_key s3cret`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		envName, key, err := parseConfigKey(args[0])
		if err != nil {
			return err
		}
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Environments == nil {
			cfg.Environments = make(map[string]cli.EnvConfig)
		}

		envCfg := cfg.Environments[envName]
		if err := setProfileValue(&envCfg, key, args[1]); err != nil {
			return err
		}
		cfg.Environments[envName] = envCfg

		if err := cli.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Set %s.%s\n", envName, key)
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <env>",
	Short: "Change the default environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if _, ok := cfg.Environments[args[0]]; !ok {
			return fmt.Errorf("environment '%s' not found", args[0])
		}
		cfg.DefaultEnv = args[0]
		if err := cli.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Default environment is now '%s'\n", args[0])
		return nil
	},
}

func parseConfigKey(s string) (envName, key string, err error) {
	envName, key, ok := strings.Cut(s, ".")
	if !ok || envName == "" {
		return "", "", fmt.Errorf("invalid key format, expected 'env.key' (e.g. 'dev.base_url')")
	}
	switch key {
	case "base_url", "api_key", "format", "timeout":
		return envName, key, nil
	}
	return "", "", fmt.Errorf("unknown key '%s', valid keys: base_url, api_key, format, timeout", key)
}

func setProfileValue(envCfg *cli.EnvConfig, key, value string) error {
	switch key {
	case "base_url":
		envCfg.BaseURL = value
	case "api_key":
		envCfg.APIKey = value
	case "format":
		f, err := cli.ParseFormat(value)
		if err != nil {
			return err
		}
		envCfg.Format = string(f)
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid timeout %q", value)
		}
		envCfg.Timeout = d
	}
	return nil
}

func maskKey(k string) string {
	if len(k) > 4 {
		return k[:4] + "***"
	}
	return "***"
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configListCmd, configGetCmd, configSetCmd, configUseCmd)
}
