package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freddiev4/rune/internal/observability"
	"github.com/freddiev4/rune/pkg/tool"
)

// ErrTimeout is returned when a server does not answer a request within the
// client's request timeout. Callers distinguish it with errors.Is.
var ErrTimeout = errors.New("request timed out")

// State tracks a client through its lifecycle. Failed is terminal.
type State int

const (
	StateUnstarted State = iota
	StateStarting
	StateInitialized
	StateReady
	StateShuttingDown
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateInitialized:
		return "initialized"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// DefaultRequestTimeout bounds every request/response exchange.
	DefaultRequestTimeout = 30 * time.Second

	shutdownGrace = 5 * time.Second

	// Oversized tool results still need to fit in the scanner buffer.
	maxLineBytes = 10 * 1024 * 1024
)

// Client manages one external tool server over newline-delimited JSON-RPC
// on the subprocess's stdio. All exported methods are safe for concurrent
// use; responses are correlated to in-flight requests by id.
type Client struct {
	name    string
	command string
	args    []string
	env     map[string]string

	requestTimeout time.Duration
	logger         zerolog.Logger

	mu      sync.Mutex
	state   State
	pending map[string]chan *rpcResponse
	tools   []Tool

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex
}

// NewClient builds a client for the given server config. The subprocess is
// not launched until Start.
func NewClient(cfg ServerConfig) *Client {
	return &Client{
		name:           cfg.Name,
		command:        cfg.Command,
		args:           cfg.Args,
		env:            cfg.Env,
		requestTimeout: DefaultRequestTimeout,
		logger:         log.With().Str("component", "mcp").Str("server", cfg.Name).Logger(),
		pending:        make(map[string]chan *rpcResponse),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start launches the server subprocess and begins reading its stdout.
// The configured env entries overlay the parent environment.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.state != StateUnstarted {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("server %s already started (state %s)", c.name, st)
	}
	c.state = StateStarting
	c.mu.Unlock()

	cmd := exec.Command(c.command, c.args...)
	cmd.Env = os.Environ()
	for k, v := range c.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("open stdin for server %s: %w", c.name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("open stdout for server %s: %w", c.name, err)
	}

	if err := cmd.Start(); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("launch server %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.mu.Unlock()

	go c.readLoop(stdout)

	c.logger.Debug().Str("command", c.command).Msg("server process started")
	return nil
}

// readLoop delivers responses to waiting callers. Lines that are not valid
// JSON, or that carry no known request id, are dropped.
func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			c.logger.Debug().Err(err).Msg("discarding unparseable line")
			continue
		}
		id := responseID(resp.ID)
		if id == "" {
			// Server-initiated notification. Nothing correlates to it.
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
	c.logger.Debug().Msg("server stdout closed")
}

// writeLine serializes one message and writes it followed by a newline.
func (c *Client) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.stdin == nil {
		return fmt.Errorf("server %s has no stdin", c.name)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to server %s: %w", c.name, err)
	}
	return nil
}

// call sends a request and blocks until the matching response arrives, the
// context is canceled, or the request timeout elapses.
func (c *Client) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	id := uuid.NewString()
	ch := make(chan *rpcResponse, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	if err := c.writeLine(req); err != nil {
		c.dropPending(id)
		observability.RecordMCPRequest(c.name, "write_error")
		return nil, err
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			observability.RecordMCPRequest(c.name, "rpc_error")
			return nil, fmt.Errorf("server %s: %s (code %d)", c.name, resp.Error.Message, resp.Error.Code)
		}
		observability.RecordMCPRequest(c.name, "ok")
		return resp, nil
	case <-ctx.Done():
		c.dropPending(id)
		observability.RecordMCPRequest(c.name, "canceled")
		return nil, fmt.Errorf("request %s to server %s: %w", method, c.name, ctx.Err())
	case <-timer.C:
		c.dropPending(id)
		observability.RecordMCPRequest(c.name, "timeout")
		return nil, fmt.Errorf("server %s did not respond to %s within %s: %w",
			c.name, method, c.requestTimeout, ErrTimeout)
	}
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// notify sends a one-way notification. No response is expected.
func (c *Client) notify(method string, params any) error {
	return c.writeLine(rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
}

// Initialize performs the protocol handshake: an initialize request followed
// by the initialized notification once the server answers.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "rune",
			"version": "0.2.0",
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("initialize server %s: %w", c.name, err)
	}
	if err := c.notify("notifications/initialized", map[string]any{}); err != nil {
		c.setState(StateFailed)
		return err
	}
	c.setState(StateInitialized)
	c.logger.Debug().Msg("handshake complete")
	return nil
}

// DiscoverTools asks the server for its tool catalog and caches it. The
// client becomes Ready on success.
func (c *Client) DiscoverTools(ctx context.Context) ([]Tool, error) {
	resp, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("list tools on server %s: %w", c.name, err)
	}
	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("decode tool list from server %s: %w", c.name, err)
	}
	tools := result.Tools
	for i := range tools {
		tools[i].ServerName = c.name
	}

	c.mu.Lock()
	c.tools = tools
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info().Int("tools", len(tools)).Msg("server ready")
	return tools, nil
}

// Tools returns the cached tool catalog from the last discovery.
func (c *Client) Tools() []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// HasTool reports whether the cached catalog contains the named tool.
func (c *Client) HasTool(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// CallTool invokes a tool on the server. Failures are folded into the
// returned Result rather than surfaced as errors so the model always sees
// something it can react to.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) tool.Result {
	if c.State() != StateReady {
		return tool.Fail(fmt.Sprintf("server %s is not ready (state %s)", c.name, c.State()))
	}
	if args == nil {
		args = map[string]any{}
	}
	params := map[string]any{"name": name, "arguments": args}
	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return tool.Fail(fmt.Sprintf("call %s on server %s: %v", name, c.name, err))
	}
	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return tool.Fail(fmt.Sprintf("decode result of %s from server %s: %v", name, c.name, err))
	}
	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return tool.Fail(text)
	}
	return tool.Ok(text)
}

// Shutdown stops the server, escalating from a shutdown request through the
// exit notification to SIGTERM and finally a hard kill. It is idempotent.
func (c *Client) Shutdown() {
	c.mu.Lock()
	if c.state == StateStopped || c.state == StateShuttingDown {
		c.mu.Unlock()
		return
	}
	c.state = StateShuttingDown
	cmd := c.cmd
	stdin := c.stdin
	c.mu.Unlock()

	if stdin != nil {
		// Best effort. A hung server is handled by the signals below.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, _ = c.call(ctx, "shutdown", map[string]any{})
		cancel()
		_ = c.notify("exit", nil)
		_ = stdin.Close()
	}

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			_ = cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			_ = cmd.Process.Kill()
			<-done
		}
	}

	c.setState(StateStopped)
	c.logger.Debug().Msg("server stopped")
}
