// Package config handles configuration loading for vibeboard.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/openvibe/vibeboard/pkg/models"
)

// Config holds all configuration for the engine and CLI.
type Config struct {
	Providers ProvidersConfig `mapstructure:"providers"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Models    ModelsConfig    `mapstructure:"models"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	// Preferred is the provider tried first for every dispatch.
	Preferred string `mapstructure:"preferred"`
	// Anthropic holds hosted-API settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	// SelfHosted holds the user-operated endpoint settings.
	SelfHosted SelfHostedConfig `mapstructure:"selfhosted"`
	// Local holds local-runtime settings.
	Local LocalConfig `mapstructure:"local"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// SelfHostedConfig holds settings for an OpenAI-compatible endpoint.
type SelfHostedConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// LocalConfig holds local-runtime settings.
type LocalConfig struct {
	// RuntimeURL is the localhost inference endpoint of the embedded runtime.
	// Empty means local execution is unsupported in this environment.
	RuntimeURL string `mapstructure:"runtime_url"`
	// Model is the user's explicit local model choice; empty picks the
	// catalog default by the size ranking.
	Model string `mapstructure:"model"`
}

// ExecutorConfig holds scheduling settings.
type ExecutorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	// Request bounds each generation call.
	Request time.Duration `mapstructure:"request"`
	// Probe bounds each availability probe.
	Probe time.Duration `mapstructure:"probe"`
}

// ModelsConfig holds local model storage settings.
type ModelsConfig struct {
	// Dir is where local model weights are stored.
	Dir string `mapstructure:"dir"`
}

// PreferredProvider returns the configured preferred provider id, falling
// back to the local runtime when unset or invalid.
func (c *Config) PreferredProvider() models.ProviderID {
	id := models.ProviderID(c.Providers.Preferred)
	if !id.Valid() {
		return models.ProviderLocal
	}
	return id
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (VIBEBOARD_*, ANTHROPIC_API_KEY)
// 2. Project config (.vibeboard.yaml in current directory or a parent)
// 3. User config (~/.config/vibeboard/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("VIBEBOARD")
	v.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("providers.selfhosted.endpoint", "VIBEBOARD_SELFHOSTED_ENDPOINT")
	v.BindEnv("providers.local.runtime_url", "VIBEBOARD_LOCAL_RUNTIME_URL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Providers.Anthropic.APIKey = os.ExpandEnv(cfg.Providers.Anthropic.APIKey)
	cfg.Providers.SelfHosted.APIKey = os.ExpandEnv(cfg.Providers.SelfHosted.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Providers.Anthropic.APIKey = os.ExpandEnv(cfg.Providers.Anthropic.APIKey)
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("providers.preferred", string(models.ProviderLocal))
	v.SetDefault("providers.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("executor.poll_interval", "5s")
	v.SetDefault("executor.max_tokens", 4096)
	v.SetDefault("executor.temperature", 0.7)
	v.SetDefault("timeouts.request", "60s")
	v.SetDefault("timeouts.probe", "2s")
	v.SetDefault("models.dir", defaultModelsDir())
}

func defaultModelsDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "vibeboard", "models")
}

func getUserConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "vibeboard")
}

// findProjectConfig walks up from the working directory looking for
// .vibeboard.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".vibeboard.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
