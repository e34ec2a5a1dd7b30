package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var knownProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

var knownAgents = map[string]bool{
	"build": true,
	"plan":  true,
	// "subagent" is deliberately absent: it is spawned internally and
	// cannot be selected as the starting agent.
}

// Validate checks a loaded configuration for values that would fail later
// in confusing ways.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if !knownProviders[cfg.Provider] {
		return fmt.Errorf("unknown provider %q, expected openai or anthropic", cfg.Provider)
	}
	if cfg.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if cfg.Agent != "" && !knownAgents[cfg.Agent] {
		return fmt.Errorf("unknown agent %q, expected build or plan", cfg.Agent)
	}

	if cfg.CompactionThreshold < 0 {
		return fmt.Errorf("compaction_threshold cannot be negative")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if cfg.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
	}

	if cfg.Cleanup.Enabled {
		if cfg.Cleanup.RetentionDays <= 0 {
			return fmt.Errorf("cleanup retention_days must be positive")
		}
		if cfg.Cleanup.Schedule != "" {
			if _, err := cron.ParseStandard(cfg.Cleanup.Schedule); err != nil {
				return fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Cleanup.Schedule, err)
			}
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics enabled but no listen address configured")
	}

	return nil
}
