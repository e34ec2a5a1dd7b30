package permission

// Preset permission sets for the built-in agent roles.

// BuildPermissions grants full access to the build agent. Destructive shell
// commands still require approval.
func BuildPermissions() *Set {
	s := NewSet("build", Allow)
	s.Rules = map[string]Rule{
		"shell": {
			ToolName:       "shell",
			Level:          Ask,
			DeniedPatterns: []string{"rm -rf /", "mkfs", "> /dev/"},
		},
		"read_file":  {ToolName: "read_file", Level: Allow},
		"write_file": {ToolName: "write_file", Level: Allow},
		"edit_file":  {ToolName: "edit_file", Level: Allow},
		"list_files": {ToolName: "list_files", Level: Allow},
		"glob":       {ToolName: "glob", Level: Allow},
		"grep":       {ToolName: "grep", Level: Allow},
		"tree":       {ToolName: "tree", Level: Allow},
		"web_fetch":  {ToolName: "web_fetch", Level: Ask},
		"web_search": {ToolName: "web_search", Level: Ask},
		"task":       {ToolName: "task", Level: Allow},
		"todo":       {ToolName: "todo", Level: Allow},
	}
	return s
}

// PlanPermissions grants read-only access to the plan agent.
func PlanPermissions() *Set {
	s := NewSet("plan", Deny)
	s.Rules = map[string]Rule{
		"read_file":  {ToolName: "read_file", Level: Allow},
		"list_files": {ToolName: "list_files", Level: Allow},
		"glob":       {ToolName: "glob", Level: Allow},
		"grep":       {ToolName: "grep", Level: Allow},
		"tree":       {ToolName: "tree", Level: Allow},
		"web_fetch":  {ToolName: "web_fetch", Level: Ask},
		"web_search": {ToolName: "web_search", Level: Ask},
		"todo":       {ToolName: "todo", Level: Allow},
	}
	return s
}

// SubagentPermissions is the build set without recursive task spawning.
func SubagentPermissions() *Set {
	s := BuildPermissions()
	s.Name = "subagent"
	s.SetPermission("task", Deny)
	return s
}
