package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/freddiev4/rune/pkg/mcp"
)

// mcpFile matches the conventional mcp.json layout:
//
//	{"mcpServers": {"name": {"command": "npx", "args": [...], "env": {...}}}}
type mcpFile struct {
	Servers map[string]struct {
		Command string            `json:"command"`
		Args    []string          `json:"args"`
		Env     map[string]string `json:"env"`
	} `json:"mcpServers"`
}

// LoadMCPServers parses an mcp.json file into server configs, sorted by
// name for deterministic startup order.
func LoadMCPServers(path string) ([]mcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config %s: %w", path, err)
	}

	var file mcpFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse mcp config %s: %w", path, err)
	}

	names := make([]string, 0, len(file.Servers))
	for name := range file.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	configs := make([]mcp.ServerConfig, 0, len(names))
	for _, name := range names {
		entry := file.Servers[name]
		if entry.Command == "" {
			return nil, fmt.Errorf("mcp server %q has no command", name)
		}
		configs = append(configs, mcp.ServerConfig{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
		})
	}
	return configs, nil
}
