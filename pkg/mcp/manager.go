package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freddiev4/rune/internal/observability"
	"github.com/freddiev4/rune/pkg/tool"
)

// Manager owns the set of configured tool servers. A server that fails to
// come up is logged and skipped; the rest stay usable.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	order   []string
	logger  zerolog.Logger
}

// NewManager builds a manager with no servers attached.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		logger:  log.With().Str("component", "mcp_manager").Logger(),
	}
}

// StartAll launches every configured server through handshake and tool
// discovery. Failures are per-server: a broken server is shut down and
// omitted, never fatal to the rest.
func (m *Manager) StartAll(ctx context.Context, configs []ServerConfig) {
	for _, cfg := range configs {
		client := NewClient(cfg)
		if err := client.Start(); err != nil {
			m.logger.Warn().Err(err).Str("server", cfg.Name).Msg("server failed to start, skipping")
			continue
		}
		if err := client.Initialize(ctx); err != nil {
			m.logger.Warn().Err(err).Str("server", cfg.Name).Msg("handshake failed, skipping")
			client.Shutdown()
			continue
		}
		if _, err := client.DiscoverTools(ctx); err != nil {
			m.logger.Warn().Err(err).Str("server", cfg.Name).Msg("tool discovery failed, skipping")
			client.Shutdown()
			continue
		}

		m.mu.Lock()
		m.clients[cfg.Name] = client
		m.order = append(m.order, cfg.Name)
		ready := len(m.clients)
		m.mu.Unlock()
		observability.SetMCPServersReady(ready)
	}
}

// Server returns the named client, if it came up.
func (m *Manager) Server(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	return c, ok
}

// HasTool reports whether any ready server provides the named tool.
func (m *Manager) HasTool(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if c.HasTool(name) {
			return true
		}
	}
	return false
}

// Tools returns the combined catalog across servers, in the order the
// servers were started.
func (m *Manager) Tools() []Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Tool
	for _, name := range m.order {
		out = append(out, m.clients[name].Tools()...)
	}
	return out
}

// ToolDefinitions converts the combined catalog into the schema form the
// model providers consume.
func (m *Manager) ToolDefinitions() []tool.Schema {
	tools := m.Tools()
	out := make([]tool.Schema, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, tool.Schema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return out
}

// CallTool routes a call to the first server providing the tool. An unknown
// tool is a failed Result, not an error.
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any) tool.Result {
	m.mu.RLock()
	var target *Client
	for _, serverName := range m.order {
		if c := m.clients[serverName]; c.HasTool(name) {
			target = c
			break
		}
	}
	m.mu.RUnlock()

	if target == nil {
		return tool.Fail(fmt.Sprintf("no server provides tool %q", name))
	}
	return target.CallTool(ctx, name, args)
}

// ShutdownAll stops every server. Safe to call more than once.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]*Client)
	m.order = nil
	m.mu.Unlock()

	for _, c := range clients {
		c.Shutdown()
	}
	observability.SetMCPServersReady(0)
}
