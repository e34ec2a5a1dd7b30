package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freddiev4/rune/internal/observability"
	"github.com/freddiev4/rune/pkg/permission"
)

// ApprovalCallback is invoked synchronously when a tool resolves to Ask and
// auto-approval is disabled. It returns true to permit execution.
type ApprovalCallback func(toolName, callID string, args map[string]any) bool

// ExternalRouter routes tool calls to externally-served tools. Satisfied by
// *mcp.Manager.
type ExternalRouter interface {
	HasTool(name string) bool
	CallTool(ctx context.Context, name string, args map[string]any) Result
}

// Dispatcher applies permission gating and routes tool calls to either the
// built-in registry or an external router.
type Dispatcher struct {
	registry *Registry
	external ExternalRouter
}

// NewDispatcher creates a dispatcher. external may be nil when no external
// tool servers are configured.
func NewDispatcher(registry *Registry, external ExternalRouter) *Dispatcher {
	return &Dispatcher{registry: registry, external: external}
}

// Execute runs one tool call under the given permission set.
//
// Argument parse failures, permission denials, and handler failures all come
// back as failed Results; Execute never returns an error and never panics.
// An Ask decision with no approval path falls through to approval, matching
// auto-approve semantics.
func (d *Dispatcher) Execute(
	ctx context.Context,
	toolName, callID, rawArgs string,
	perms *permission.Set,
	approver ApprovalCallback,
	autoApprove bool,
) Result {
	start := time.Now()
	result := d.execute(ctx, toolName, callID, rawArgs, perms, approver, autoApprove)
	observability.RecordToolExecution(toolName, time.Since(start), result.Success)

	if !result.Success {
		log.Debug().
			Str("tool", toolName).
			Str("call_id", callID).
			Str("error", result.Error).
			Msg("Tool call failed")
	}

	return result
}

func (d *Dispatcher) execute(
	ctx context.Context,
	toolName, callID, rawArgs string,
	perms *permission.Set,
	approver ApprovalCallback,
	autoApprove bool,
) Result {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return Fail(fmt.Sprintf("invalid JSON arguments for %s: %v", toolName, err))
		}
	}

	if perms != nil {
		switch perms.Resolve(toolName) {
		case permission.Deny:
			return Fail(fmt.Sprintf("tool %q is not permitted by the %s permission set", toolName, perms.Name))
		case permission.Ask:
			if !autoApprove && approver != nil {
				if !approver(toolName, callID, args) {
					return Fail(fmt.Sprintf("tool %q execution denied by user", toolName))
				}
			}
		}
	}

	if d.external != nil && d.external.HasTool(toolName) {
		return d.external.CallTool(ctx, toolName, args)
	}

	return d.executeBuiltin(ctx, toolName, args)
}

func (d *Dispatcher) executeBuiltin(ctx context.Context, toolName string, args map[string]any) (result Result) {
	def := d.registry.Get(toolName)
	if def == nil {
		return Fail(fmt.Sprintf("unknown tool: %s", toolName))
	}

	if err := d.registry.ValidateArgs(toolName, args); err != nil {
		return Fail(fmt.Sprintf("invalid arguments for %s: %v", toolName, err))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", toolName).Any("panic", r).Msg("Tool handler panicked")
			result = Fail(fmt.Sprintf("tool %s panicked: %v", toolName, r))
		}
	}()

	output, err := def.Handler(ctx, args)
	if err != nil {
		return Fail(err.Error())
	}
	return Ok(output)
}
