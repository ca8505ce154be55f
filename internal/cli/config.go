package cli

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envBaseURL = "SEGMENTS_BASE_URL"
	envAPIKey  = "SEGMENTS_API_KEY"

	// customEnv names a target assembled from flags or environment variables
	// without a matching profile.
	customEnv = "custom"
)

// Config is the segmentctl profile file.
type Config struct {
	DefaultEnv   string               `yaml:"default_env"`
	Environments map[string]EnvConfig `yaml:"environments"`
}

// EnvConfig is one segments service deployment.
type EnvConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Format  string        `yaml:"format,omitempty"`  // default --format for this profile
	Timeout time.Duration `yaml:"timeout,omitempty"` // default --timeout for this profile
}

// Validate checks that the profile can reach a service.
func (e EnvConfig) Validate() error {
	if e.BaseURL == "" {
		return errors.New("base_url is not set")
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an http(s) URL", e.BaseURL)
	}
	if e.Format != "" {
		if _, err := ParseFormat(e.Format); err != nil {
			return err
		}
	}
	if e.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}

// configPathOverride lets tests point the CLI at a temporary file.
var configPathOverride string

// GetConfigPath returns ~/.segmentctl/config.yaml.
func GetConfigPath() (string, error) {
	if configPathOverride != "" {
		return configPathOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".segmentctl", "config.yaml"), nil
}

// LoadConfig reads the profile file. A missing file yields an empty config.
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{DefaultEnv: "dev"}
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	}
	if cfg.Environments == nil {
		cfg.Environments = make(map[string]EnvConfig)
	}
	return cfg, nil
}

// SaveConfig writes the profile file, readable by the owner only since it
// holds admin keys.
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetEnvConfig resolves the target service. Each setting is taken from the
// first layer that sets it: flags, then SEGMENTS_* variables, then the
// profile. The profile file is only consulted when a layer above leaves the
// base URL or key unset, or when envName is given explicitly.
func GetEnvConfig(envName, baseURLFlag, apiKeyFlag string) (*EnvConfig, string, error) {
	resolved := EnvConfig{
		BaseURL: firstSet(baseURLFlag, os.Getenv(envBaseURL)),
		APIKey:  firstSet(apiKeyFlag, os.Getenv(envAPIKey)),
	}

	explicit := envName != ""
	if explicit || resolved.BaseURL == "" || resolved.APIKey == "" {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, "", err
		}
		if !explicit {
			envName = cfg.DefaultEnv
		}
		profile, ok := cfg.Environments[envName]
		switch {
		case ok:
			resolved.BaseURL = firstSet(resolved.BaseURL, profile.BaseURL)
			resolved.APIKey = firstSet(resolved.APIKey, profile.APIKey)
			resolved.Format = profile.Format
			resolved.Timeout = profile.Timeout
		case explicit || resolved.BaseURL == "":
			return nil, "", fmt.Errorf("environment '%s' not found in config", envName)
		default:
			envName = customEnv
		}
	} else {
		envName = customEnv
	}

	if err := resolved.Validate(); err != nil {
		return nil, "", fmt.Errorf("environment '%s': %w", envName, err)
	}
	return &resolved, envName, nil
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// InitConfig writes a profile file pointing at a local development server.
func InitConfig() error {
	return SaveConfig(&Config{
		DefaultEnv: "dev",
		Environments: map[string]EnvConfig{
			"dev": {
				BaseURL: "http://localhost:8080",
				APIKey:  "admin-123",
				Format:  string(FormatTable),
				Timeout: 30 * time.Second,
			},
		},
	})
}
