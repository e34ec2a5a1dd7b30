package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/freddiev4/rune/pkg/permission"
)

// Agent modes. Primary agents face the user; subagents are spawned by the
// task tool and cannot spawn further subagents.
const (
	ModePrimary  = "primary"
	ModeSubagent = "subagent"
)

// Definition is the declarative configuration for an agent type. It is a
// value object; the runtime state lives in Loop.
type Definition struct {
	Name         string
	Description  string
	Mode         string
	SystemPrompt string
	Permissions  *permission.Set
	Temperature  float64
	MaxTokens    int
	MaxTurns     int
}

// Registry holds the known agent definitions.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates an empty definition registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("agent definition has no name")
	}
	if def.Mode != ModePrimary && def.Mode != ModeSubagent {
		return fmt.Errorf("agent %s has invalid mode %q", def.Name, def.Mode)
	}
	if def.Permissions == nil {
		return fmt.Errorf("agent %s has no permission set", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Get looks up a definition by name. The error names the available agents.
func (r *Registry) Get(name string) (Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		names := make([]string, 0, len(r.defs))
		for n := range r.defs {
			names = append(names, n)
		}
		sort.Strings(names)
		return Definition{}, fmt.Errorf("unknown agent %q, available: %s", name, strings.Join(names, ", "))
	}
	return def, nil
}

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

const buildSystemPrompt = `You are a coding assistant with full access to read, write, and execute code.

When working on tasks:
1. Understand the codebase first, reading relevant files before making changes
2. Make changes incrementally and verify they work
3. Run tests when available
4. Use the todo tool to track multi-step work
5. Use the task tool to delegate independent subtasks to subagents
6. Be careful with destructive operations`

const planSystemPrompt = `You are a read-only planning and analysis assistant. You can explore the codebase and answer questions, but you CANNOT modify files or execute commands.

Your role:
1. Explore and understand codebases
2. Design implementation plans with clear steps
3. Identify potential issues and architectural trade-offs
4. Answer questions about code structure and behavior

You CANNOT write files, edit files, run shell commands, or spawn subagents. If the user needs changes made, suggest switching to the build agent.`

const subagentSystemPrompt = `You are a subagent handling a specific subtask. Complete the task autonomously and return a clear summary of what you did.

Focus on:
1. Completing the assigned task efficiently
2. Returning a concise summary of actions taken and results`

// DefaultRegistry returns the built-in agents: build, plan, and subagent.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := []Definition{
		{
			Name:         "build",
			Description:  "Primary agent with full file and command access",
			Mode:         ModePrimary,
			SystemPrompt: buildSystemPrompt,
			Permissions:  permission.BuildPermissions(),
			MaxTokens:    4096,
			MaxTurns:     50,
		},
		{
			Name:         "plan",
			Description:  "Read-only agent for exploration and analysis",
			Mode:         ModePrimary,
			SystemPrompt: planSystemPrompt,
			Permissions:  permission.PlanPermissions(),
			MaxTokens:    4096,
			MaxTurns:     30,
		},
		{
			Name:         "subagent",
			Description:  "Subagent for handling delegated subtasks",
			Mode:         ModeSubagent,
			SystemPrompt: subagentSystemPrompt,
			Permissions:  permission.SubagentPermissions(),
			MaxTokens:    4096,
			MaxTurns:     30,
		},
	}
	for _, def := range builtins {
		// Built-in definitions are known valid.
		_ = r.Register(def)
	}
	return r
}
