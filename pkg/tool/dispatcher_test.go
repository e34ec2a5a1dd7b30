package tool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freddiev4/rune/pkg/permission"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name:        "echo",
		Description: "Echo the input back",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	}))
	require.NoError(t, r.Register(Definition{
		Name:        "boom",
		Description: "Always panics",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			panic("kaboom")
		},
	}))
	return r
}

func TestDispatcher_Execute(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil)
	perms := permission.NewSet("test", permission.Allow)

	result := d.Execute(context.Background(), "echo", "call-1", `{"text":"hello"}`, perms, nil, true)

	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Output)
}

func TestDispatcher_Execute_DeniedTool(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil)
	perms := permission.PlanPermissions()

	// The plan agent may not run shell commands.
	result := d.Execute(context.Background(), "shell", "call-1", `{"command":"ls"}`, perms, nil, true)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not permitted")
	assert.Contains(t, result.Error, "plan")
}

func TestDispatcher_Execute_InvalidJSONArguments(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil)
	perms := permission.NewSet("test", permission.Allow)

	result := d.Execute(context.Background(), "echo", "call-1", `{not json`, perms, nil, true)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid JSON arguments")
}

func TestDispatcher_Execute_ApprovalFlow(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil)
	perms := permission.NewSet("test", permission.Allow)
	perms.SetPermission("echo", permission.Ask)

	var asked []string
	approver := func(toolName, callID string, args map[string]any) bool {
		asked = append(asked, toolName)
		return toolName != "echo"
	}

	// Rejection by the approver fails the call.
	result := d.Execute(context.Background(), "echo", "call-1", `{"text":"hi"}`, perms, approver, false)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "denied by user")
	assert.Equal(t, []string{"echo"}, asked)

	// Auto-approve bypasses the approver entirely.
	asked = nil
	result = d.Execute(context.Background(), "echo", "call-2", `{"text":"hi"}`, perms, approver, true)
	assert.True(t, result.Success)
	assert.Empty(t, asked)
}

func TestDispatcher_Execute_AskWithoutApproverProceeds(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil)
	perms := permission.NewSet("test", permission.Ask)

	result := d.Execute(context.Background(), "echo", "call-1", `{"text":"hi"}`, perms, nil, false)
	assert.True(t, result.Success)
}

func TestDispatcher_Execute_UnknownTool(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil)
	perms := permission.NewSet("test", permission.Allow)

	result := d.Execute(context.Background(), "nope", "call-1", `{}`, perms, nil, true)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestDispatcher_Execute_SchemaValidation(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil)
	perms := permission.NewSet("test", permission.Allow)

	// Missing the required "text" argument.
	result := d.Execute(context.Background(), "echo", "call-1", `{}`, perms, nil, true)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid arguments")
}

func TestDispatcher_Execute_HandlerPanicIsContained(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil)
	perms := permission.NewSet("test", permission.Allow)

	result := d.Execute(context.Background(), "boom", "call-1", `{}`, perms, nil, true)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panicked")
}

// fakeRouter serves a single external tool.
type fakeRouter struct {
	tool  string
	calls []map[string]any
}

func (f *fakeRouter) HasTool(name string) bool { return name == f.tool }

func (f *fakeRouter) CallTool(ctx context.Context, name string, args map[string]any) Result {
	f.calls = append(f.calls, args)
	return Ok(fmt.Sprintf("external:%s", name))
}

func TestDispatcher_Execute_RoutesExternalFirst(t *testing.T) {
	router := &fakeRouter{tool: "echo"}
	d := NewDispatcher(newTestRegistry(t), router)
	perms := permission.NewSet("test", permission.Allow)

	// "echo" exists both as a builtin and externally; external wins.
	result := d.Execute(context.Background(), "echo", "call-1", `{"text":"hi"}`, perms, nil, true)

	assert.True(t, result.Success)
	assert.Equal(t, "external:echo", result.Output)
	require.Len(t, router.calls, 1)
	assert.Equal(t, "hi", router.calls[0]["text"])
}

func TestDispatcher_Execute_ExternalToolStillGated(t *testing.T) {
	router := &fakeRouter{tool: "external_thing"}
	d := NewDispatcher(newTestRegistry(t), router)
	perms := permission.NewSet("locked", permission.Deny)

	result := d.Execute(context.Background(), "external_thing", "call-1", `{}`, perms, nil, true)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not permitted")
	assert.Empty(t, router.calls)
}
