package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "build", cfg.Agent)
	assert.True(t, cfg.AutoApprove)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Equal(t, "0 3 * * *", cfg.Cleanup.Schedule)
	assert.Equal(t, 7, cfg.Cleanup.RetentionDays)
}

func TestAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic")

	cfg := &Config{Provider: "openai", OpenAIAPIKey: "file-openai"}
	assert.Equal(t, "file-openai", cfg.APIKey())

	cfg.OpenAIAPIKey = ""
	assert.Equal(t, "env-openai", cfg.APIKey())

	cfg.Provider = "anthropic"
	assert.Equal(t, "env-anthropic", cfg.APIKey())

	cfg.AnthropicAPIKey = "file-anthropic"
	assert.Equal(t, "file-anthropic", cfg.APIKey())
}

func TestApplyDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.applyDefaults("/home/user")
	assert.Equal(t, filepath.Join("/home/user", ".rune"), cfg.DataDir)
	assert.Equal(t, filepath.Join("/home/user", ".rune", "sessions"), cfg.SessionsDir)
	assert.Equal(t, filepath.Join("/home/user", ".rune", "rune.log"), cfg.Logging.File)

	// Explicit values are left alone.
	cfg = DefaultConfig()
	cfg.DataDir = "/data"
	cfg.applyDefaults("/home/user")
	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, filepath.Join("/data", "sessions"), cfg.SessionsDir)
}

func TestLoader_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "rune.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.SessionsDir)
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rune.json")
	body := `{
		"provider": "anthropic",
		"model": "claude-sonnet-4-20250514",
		"agent": "plan",
		"auto_approve": false,
		"compaction_threshold": 50
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "plan", cfg.Agent)
	assert.False(t, cfg.AutoApprove)
	assert.Equal(t, 50, cfg.CompactionThreshold)

	// Unset fields keep their defaults.
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoader_LoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rune.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider": "cohere"}`), 0o644))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rune.json")

	cfg := DefaultConfig()
	cfg.Model = "gpt-4o-mini"
	cfg.DataDir = "/tmp/rune-test"
	require.NoError(t, NewLoader(path).Save(cfg))

	loaded, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", loaded.Model)
	assert.Equal(t, "/tmp/rune-test", loaded.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Provider = "cohere" }, "unknown provider"},
		{"empty model", func(c *Config) { c.Model = "" }, "model cannot be empty"},
		{"unknown agent", func(c *Config) { c.Agent = "subagent" }, "unknown agent"},
		{"negative threshold", func(c *Config) { c.CompactionThreshold = -1 }, "compaction_threshold"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad cleanup schedule", func(c *Config) {
			c.Cleanup.Enabled = true
			c.Cleanup.Schedule = "every day"
		}, "invalid cleanup schedule"},
		{"cleanup retention zero", func(c *Config) {
			c.Cleanup.Enabled = true
			c.Cleanup.RetentionDays = 0
		}, "retention_days"},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}, "no listen address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, Validate(nil))
}

func TestLoadMCPServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	body := `{
		"mcpServers": {
			"zeta": {"command": "npx", "args": ["-y", "zeta-server"]},
			"alpha": {"command": "uvx", "args": ["alpha-server"], "env": {"ALPHA_TOKEN": "x"}}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	configs, err := LoadMCPServers(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	// Startup order is name-sorted for determinism.
	assert.Equal(t, "alpha", configs[0].Name)
	assert.Equal(t, "uvx", configs[0].Command)
	assert.Equal(t, map[string]string{"ALPHA_TOKEN": "x"}, configs[0].Env)
	assert.Equal(t, "zeta", configs[1].Name)
	assert.Equal(t, []string{"-y", "zeta-server"}, configs[1].Args)
}

func TestLoadMCPServers_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMCPServers(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))
	_, err = LoadMCPServers(bad)
	assert.Error(t, err)

	noCmd := filepath.Join(dir, "nocmd.json")
	require.NoError(t, os.WriteFile(noCmd, []byte(`{"mcpServers":{"s":{"args":["x"]}}}`), 0o644))
	_, err = LoadMCPServers(noCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no command")
}
