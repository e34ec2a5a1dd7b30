// Package tool defines the tool contract, the built-in tool registry, and the
// permission-gating dispatcher.
//
// Invariants:
// - Tool names are unique within a registry.
// - Arguments are schema-validated before a built-in handler runs.
// - Handlers never leak errors or panics past the dispatcher boundary; every
//   failure becomes a failed Result.
package tool

import "context"

// Result is the outcome of executing a tool.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Ok builds a successful result.
func Ok(output string) Result {
	return Result{Success: true, Output: output}
}

// Fail builds a failed result.
func Fail(errText string) Result {
	return Result{Success: false, Error: errText}
}

// Handler executes a tool with parsed arguments and returns its textual output.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Parameter describes one tool argument.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Definition declares a tool's metadata and handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Schema is a tool description in the form consumed by the model backend.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// InputSchema renders the definition's parameters as a JSON-schema object.
func (d Definition) InputSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	var required []string
	for _, p := range d.Parameters {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ToSchema converts the definition to backend schema form.
func (d Definition) ToSchema() Schema {
	return Schema{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.InputSchema(),
	}
}
