package config

import (
	"os"
	"path/filepath"
)

// Config is the top-level harness configuration, loaded from
// ~/.rune/rune.json with RUNE_* environment overrides.
type Config struct {
	// Provider selects the model backend: "openai" or "anthropic".
	Provider string `mapstructure:"provider" json:"provider"`
	Model    string `mapstructure:"model" json:"model"`

	// Agent is the default agent definition to start with.
	Agent string `mapstructure:"agent" json:"agent"`

	// AutoApprove skips interactive approval for ask-level tools.
	AutoApprove bool `mapstructure:"auto_approve" json:"auto_approve"`

	// API keys. Empty values fall back to the provider's conventional
	// environment variable.
	OpenAIAPIKey    string `mapstructure:"openai_api_key" json:"openai_api_key,omitempty"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key" json:"anthropic_api_key,omitempty"`

	DataDir       string `mapstructure:"data_dir" json:"data_dir"`
	SessionsDir   string `mapstructure:"sessions_dir" json:"sessions_dir"`
	MCPConfigPath string `mapstructure:"mcp_config_path" json:"mcp_config_path,omitempty"`

	CompactionThreshold int `mapstructure:"compaction_threshold" json:"compaction_threshold"`
	MaxRetries          int `mapstructure:"max_retries" json:"max_retries"`

	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`
	Cleanup CleanupConfig `mapstructure:"cleanup" json:"cleanup"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level     string `mapstructure:"level" json:"level"`
	File      string `mapstructure:"file" json:"file"`
	Pretty    bool   `mapstructure:"pretty" json:"pretty"`
	Redaction bool   `mapstructure:"redaction" json:"redaction"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr"`
}

// CleanupConfig controls scheduled pruning of old session files.
type CleanupConfig struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled"`
	Schedule      string `mapstructure:"schedule" json:"schedule"`
	RetentionDays int    `mapstructure:"retention_days" json:"retention_days"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Provider:    "openai",
		Model:       "gpt-4o",
		Agent:       "build",
		AutoApprove: true,
		MaxRetries:  3,
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9190",
		},
		Cleanup: CleanupConfig{
			Schedule:      "0 3 * * *",
			RetentionDays: 7,
		},
	}
}

// APIKey resolves the key for the configured provider, falling back to the
// conventional environment variables.
func (c *Config) APIKey() string {
	switch c.Provider {
	case "anthropic":
		if c.AnthropicAPIKey != "" {
			return c.AnthropicAPIKey
		}
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		if c.OpenAIAPIKey != "" {
			return c.OpenAIAPIKey
		}
		return os.Getenv("OPENAI_API_KEY")
	}
}

// applyDefaults fills derived paths that depend on the data directory.
func (c *Config) applyDefaults(home string) {
	if c.DataDir == "" {
		c.DataDir = filepath.Join(home, ".rune")
	}
	if c.SessionsDir == "" {
		c.SessionsDir = filepath.Join(c.DataDir, "sessions")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "rune.log")
	}
}
