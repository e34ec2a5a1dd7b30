// Package permission resolves tool names to access decisions under named
// permission sets.
//
// Invariants:
// - Resolve always yields exactly one of Allow, Ask, or Deny.
// - An explicit per-tool rule overrides the set's default level.
// - Merge gives the overriding set's default and per-tool rules precedence.
package permission

import "fmt"

// Level is an access decision for a tool.
type Level string

const (
	// Allow permits execution without prompting.
	Allow Level = "allow"
	// Ask requires user confirmation before execution.
	Ask Level = "ask"
	// Deny never permits execution.
	Deny Level = "deny"
)

// Rule is the permission entry for a specific tool. AllowedArgs and
// DeniedPatterns are advisory metadata for approval surfaces; they are not
// enforced uniformly by the dispatcher.
type Rule struct {
	ToolName       string         `json:"tool_name"`
	Level          Level          `json:"level"`
	AllowedArgs    map[string]any `json:"allowed_args,omitempty"`
	DeniedPatterns []string       `json:"denied_patterns,omitempty"`
}

// Set is a named collection of permission rules with a default level.
type Set struct {
	Name         string          `json:"name"`
	DefaultLevel Level           `json:"default_level"`
	Rules        map[string]Rule `json:"rules"`
}

// NewSet creates an empty permission set with the given default level.
func NewSet(name string, defaultLevel Level) *Set {
	return &Set{
		Name:         name,
		DefaultLevel: defaultLevel,
		Rules:        make(map[string]Rule),
	}
}

// Resolve returns the decision for a tool: the explicit rule's level when one
// exists, otherwise the set's default.
func (s *Set) Resolve(toolName string) Level {
	if rule, ok := s.Rules[toolName]; ok {
		return rule.Level
	}
	return s.DefaultLevel
}

// IsAllowed reports whether the tool runs without prompting.
func (s *Set) IsAllowed(toolName string) bool {
	return s.Resolve(toolName) == Allow
}

// IsDenied reports whether the tool is never permitted.
func (s *Set) IsDenied(toolName string) bool {
	return s.Resolve(toolName) == Deny
}

// NeedsApproval reports whether the tool requires user confirmation.
func (s *Set) NeedsApproval(toolName string) bool {
	return s.Resolve(toolName) == Ask
}

// SetPermission sets or overrides the level for a tool, preserving any
// existing advisory metadata on the rule.
func (s *Set) SetPermission(toolName string, level Level) {
	if rule, ok := s.Rules[toolName]; ok {
		rule.Level = level
		s.Rules[toolName] = rule
		return
	}
	s.Rules[toolName] = Rule{ToolName: toolName, Level: level}
}

// Merge combines this set with another. The other set's default level wins,
// and its per-tool rules replace same-keyed rules from this set.
func (s *Set) Merge(other *Set) *Set {
	merged := NewSet(fmt.Sprintf("%s+%s", s.Name, other.Name), other.DefaultLevel)
	for name, rule := range s.Rules {
		merged.Rules[name] = rule
	}
	for name, rule := range other.Rules {
		merged.Rules[name] = rule
	}
	return merged
}
