package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freddiev4/rune/internal/observability"
	"github.com/freddiev4/rune/pkg/session"
	"github.com/freddiev4/rune/pkg/tool"
)

// Config holds the runtime configuration for a loop instance.
type Config struct {
	Model               string
	AgentName           string
	AutoApprove         bool
	WorkingDir          string
	MaxRetries          int
	CompactionThreshold int
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o",
		AgentName:   "build",
		AutoApprove: true,
		MaxRetries:  3,
	}
}

// ExternalTools is the surface the loop needs from an external tool server
// manager. Satisfied by *mcp.Manager.
type ExternalTools interface {
	tool.ExternalRouter
	ToolDefinitions() []tool.Schema
	ShutdownAll()
}

// TurnResult reports one iteration of the loop to observers.
type TurnResult struct {
	Response    string
	ToolCalls   []session.ToolCall
	ToolResults []tool.Result
	Finished    bool
	AgentName   string
}

// TurnFunc observes turn results as the loop progresses.
type TurnFunc func(TurnResult)

// MaxTurnsMessage is the response when a run exhausts its turn limit.
const MaxTurnsMessage = "Agent reached maximum turn limit."

// Loop drives one agent conversation: model calls, permission-gated tool
// execution, compaction, and subagent spawning.
type Loop struct {
	cfg        Config
	def        Definition
	agents     *Registry
	provider   Provider
	sess       *session.Session
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	external   ExternalTools
	approver   tool.ApprovalCallback
	todos      *tool.TodoList
	isSubagent bool
	logger     zerolog.Logger
}

// LoopOptions configures NewLoop.
type LoopOptions struct {
	Config   Config
	Provider Provider
	// Agents defaults to the built-in registry when nil.
	Agents *Registry
	// External is nil when no tool servers are configured.
	External ExternalTools
	// Approver handles ask-level tools when auto-approve is off.
	Approver tool.ApprovalCallback
}

// NewLoop builds a ready-to-run agent loop.
func NewLoop(opts LoopOptions) (*Loop, error) {
	return newLoop(opts, false, nil)
}

func newLoop(opts LoopOptions, isSubagent bool, parentTodos *tool.TodoList) (*Loop, error) {
	observability.EnsureRegistered()

	if opts.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}

	cfg := opts.Config
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.AgentName == "" {
		cfg.AgentName = "build"
	}
	if cfg.WorkingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.WorkingDir = wd
	}

	agents := opts.Agents
	if agents == nil {
		agents = DefaultRegistry()
	}

	def, err := agents.Get(cfg.AgentName)
	if err != nil {
		return nil, err
	}

	todos := parentTodos
	if todos == nil {
		todos = tool.NewTodoList()
	}

	l := &Loop{
		cfg:        cfg,
		def:        def,
		agents:     agents,
		provider:   opts.Provider,
		external:   opts.External,
		approver:   opts.Approver,
		todos:      todos,
		isSubagent: isSubagent,
		logger:     log.With().Str("component", "agent").Str("agent", def.Name).Logger(),
	}

	registry := tool.NewRegistry()
	toolOpts := tool.Options{
		WorkingDir: cfg.WorkingDir,
		Todos:      todos,
	}
	// Subagents cannot spawn further subagents.
	if !isSubagent {
		toolOpts.Spawner = l.spawnSubagent
	}
	if err := tool.RegisterBuiltins(registry, toolOpts); err != nil {
		return nil, err
	}

	l.registry = registry
	l.dispatcher = tool.NewDispatcher(registry, opts.External)
	l.sess = session.New(cfg.WorkingDir, l.buildSystemPrompt(def))
	return l, nil
}

// buildSystemPrompt composes the definition's prompt with runtime context:
// the permitted tool list, the working directory, and any external tools.
func (l *Loop) buildSystemPrompt(def Definition) string {
	var b strings.Builder
	b.WriteString(def.SystemPrompt)

	var lines []string
	if l.registry != nil {
		for _, schema := range l.registry.Schemas() {
			if def.Permissions.IsDenied(schema.Name) {
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s: %s", schema.Name, schema.Description))
		}
	}
	if len(lines) > 0 {
		b.WriteString("\n\nAvailable tools:\n")
		b.WriteString(strings.Join(lines, "\n"))
	}

	fmt.Fprintf(&b, "\n\nWorking Directory: %s\n", l.cfg.WorkingDir)

	if l.external != nil {
		var names []string
		for _, schema := range l.external.ToolDefinitions() {
			names = append(names, schema.Name)
		}
		if len(names) > 0 {
			fmt.Fprintf(&b, "\nAdditional MCP tools available: %s\n", strings.Join(names, ", "))
		}
	}

	return b.String()
}

// permittedSchemas filters built-in and external tools by the active
// permission set. Denied tools are never shown to the model.
func (l *Loop) permittedSchemas() []tool.Schema {
	var out []tool.Schema
	for _, schema := range l.registry.Schemas() {
		if !l.def.Permissions.IsDenied(schema.Name) {
			out = append(out, schema)
		}
	}
	if l.external != nil {
		for _, schema := range l.external.ToolDefinitions() {
			if !l.def.Permissions.IsDenied(schema.Name) {
				out = append(out, schema)
			}
		}
	}
	return out
}

// Run executes the loop to completion for one user input and returns the
// final response.
func (l *Loop) Run(ctx context.Context, input string) (string, error) {
	return l.RunWithNotify(ctx, input, nil)
}

// RunWithNotify is Run with a per-turn observer. onTurn may be nil.
func (l *Loop) RunWithNotify(ctx context.Context, input string, onTurn TurnFunc) (string, error) {
	start := time.Now()
	response, err := l.run(ctx, input, onTurn)
	observability.RecordAgentRun(l.def.Name, time.Since(start), err == nil)
	return response, err
}

func (l *Loop) run(ctx context.Context, input string, onTurn TurnFunc) (string, error) {
	l.sess.AddUserMessage(input)

	for turn := 0; turn < l.def.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		observability.RecordAgentTurn()

		if l.sess.NeedsCompaction(l.cfg.CompactionThreshold) {
			l.compact(ctx)
		}

		response, err := l.completeWithRetry(ctx, Request{
			Model:        l.cfg.Model,
			SystemPrompt: l.sess.SystemPrompt,
			Messages:     l.sess.Messages,
			Tools:        l.permittedSchemas(),
			Temperature:  l.def.Temperature,
			MaxTokens:    l.def.MaxTokens,
		})
		if err != nil {
			return "", err
		}

		l.sess.RecordUsage(response.PromptTokens, response.CompletionTokens)

		if len(response.ToolCalls) == 0 {
			l.sess.AddAssistantMessage(response.Content, nil)
			if onTurn != nil {
				onTurn(TurnResult{
					Response:  response.Content,
					Finished:  true,
					AgentName: l.def.Name,
				})
			}
			return response.Content, nil
		}

		l.sess.AddAssistantMessage(response.Content, response.ToolCalls)

		// Tool calls run strictly in the order the model requested them.
		var results []tool.Result
		for _, call := range response.ToolCalls {
			result := l.dispatcher.Execute(
				ctx, call.Name, call.ID, call.Arguments,
				l.def.Permissions, l.approver, l.cfg.AutoApprove,
			)
			results = append(results, result)

			content := result.Output
			if !result.Success {
				content = fmt.Sprintf("Error: %s", result.Error)
			}
			l.sess.AddToolResult(call.ID, call.Name, content)
		}

		if onTurn != nil {
			onTurn(TurnResult{
				Response:    response.Content,
				ToolCalls:   response.ToolCalls,
				ToolResults: results,
				AgentName:   l.def.Name,
			})
		}
	}

	l.logger.Warn().Int("max_turns", l.def.MaxTurns).Msg("turn limit reached")
	return MaxTurnsMessage, nil
}

// completeWithRetry calls the provider with exponential backoff on
// transient failures.
func (l *Loop) completeWithRetry(ctx context.Context, req Request) (*Response, error) {
	maxRetries := l.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := l.provider.Complete(ctx, req)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return nil, err
		}
		if attempt == maxRetries-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delay := time.Duration(1<<attempt) * time.Second
		l.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retrying model call after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

const summaryPrompt = "Summarize the conversation so far in 2-3 paragraphs. " +
	"Include key decisions, files modified, and current state."

// compact asks the model to summarize the history, then folds the session
// down around that summary. A failed summarization degrades to a
// placeholder rather than blocking the run.
func (l *Loop) compact(ctx context.Context) {
	messages := append(append([]session.Message{}, l.sess.Messages...), session.Message{
		Role:    session.RoleUser,
		Content: summaryPrompt,
	})

	summary := "(Automatic compaction: older messages truncated)"
	response, err := l.provider.Complete(ctx, Request{
		Model:        l.cfg.Model,
		SystemPrompt: l.sess.SystemPrompt,
		Messages:     messages,
		MaxTokens:    1024,
	})
	if err != nil {
		l.logger.Warn().Err(err).Msg("summarization failed, compacting with placeholder")
	} else if response.Content != "" {
		summary = response.Content
	}

	before := len(l.sess.Messages)
	l.sess.Compact(summary)
	observability.RecordCompaction()
	l.logger.Info().
		Int("before", before).
		Int("after", len(l.sess.Messages)).
		Msg("session compacted")
}

// spawnSubagent runs a delegated subtask on a child loop with a forked
// session and returns the child's final response. Child token usage is
// folded into this session's totals.
func (l *Loop) spawnSubagent(ctx context.Context, description, prompt string) (string, error) {
	runID, err := gonanoid.New(8)
	if err != nil {
		runID = "unknown"
	}
	logger := l.logger.With().Str("run_id", runID).Str("description", description).Logger()
	logger.Info().Msg("spawning subagent")

	childCfg := l.cfg
	childCfg.AgentName = "subagent"

	child, err := newLoop(LoopOptions{
		Config:   childCfg,
		Provider: l.provider,
		Agents:   l.agents,
		External: l.external,
		Approver: l.approver,
	}, true, l.todos)
	if err != nil {
		observability.RecordSubagentRun(false)
		return "", fmt.Errorf("failed to create subagent: %w", err)
	}

	// The child works on a fork: shared lineage, fresh history.
	child.sess = l.sess.Fork(child.sess.SystemPrompt)

	result, runErr := child.Run(ctx, prompt)

	l.sess.Usage.Add(child.sess.Usage.PromptTokens, child.sess.Usage.CompletionTokens)
	observability.RecordSubagentRun(runErr == nil)

	if runErr != nil {
		logger.Warn().Err(runErr).Msg("subagent failed")
		return "", runErr
	}
	logger.Info().Int("turns", child.sess.TurnCount).Msg("subagent finished")
	return result, nil
}

// SwitchAgent changes the active agent definition while preserving the
// conversation history. The leading system message is rewritten in place.
func (l *Loop) SwitchAgent(name string) error {
	def, err := l.agents.Get(name)
	if err != nil {
		return err
	}
	l.def = def
	l.cfg.AgentName = name
	l.logger = log.With().Str("component", "agent").Str("agent", def.Name).Logger()

	prompt := l.buildSystemPrompt(def)
	l.sess.SystemPrompt = prompt
	if len(l.sess.Messages) > 0 && l.sess.Messages[0].Role == session.RoleSystem {
		l.sess.Messages[0].Content = prompt
	}
	return nil
}

// Session exposes the underlying session for persistence and inspection.
func (l *Loop) Session() *session.Session {
	return l.sess
}

// SetSession replaces the loop's session, for resuming persisted history.
func (l *Loop) SetSession(s *session.Session) {
	l.sess = s
}

// Definition returns the active agent definition.
func (l *Loop) Definition() Definition {
	return l.def
}

// Todos exposes the shared todo list.
func (l *Loop) Todos() *tool.TodoList {
	return l.todos
}

// Reset discards the conversation and starts a fresh session.
func (l *Loop) Reset() {
	l.sess = session.New(l.cfg.WorkingDir, l.buildSystemPrompt(l.def))
}

// Shutdown releases held resources, including external tool servers.
func (l *Loop) Shutdown() {
	if l.external != nil {
		l.external.ShutdownAll()
	}
}
