package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer scripts the far end of the protocol over in-memory pipes.
type fakeServer struct {
	out *io.PipeWriter // server -> client
}

func (s *fakeServer) respond(id any, result any) {
	data, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
	s.out.Write(append(data, '\n'))
}

// newPipedClient wires a client to a scripted server without a subprocess.
// The handler receives every request the client sends; notifications have an
// empty id.
func newPipedClient(t *testing.T, handle func(s *fakeServer, req rpcRequest)) *Client {
	t.Helper()

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	c := NewClient(ServerConfig{Name: "fake"})
	c.stdin = clientWriter
	c.state = StateStarting
	go c.readLoop(clientReader)

	server := &fakeServer{out: serverWriter}
	go func() {
		scanner := bufio.NewScanner(serverReader)
		for scanner.Scan() {
			var req rpcRequest
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			handle(server, req)
		}
	}()

	t.Cleanup(func() {
		clientWriter.Close()
		serverWriter.Close()
	})
	return c
}

// echoHandler implements a minimal server with one echo tool.
func echoHandler(s *fakeServer, req rpcRequest) {
	switch req.Method {
	case "initialize":
		s.respond(req.ID, map[string]any{"protocolVersion": protocolVersion})
	case "tools/list":
		s.respond(req.ID, map[string]any{
			"tools": []map[string]any{
				{
					"name":        "echo",
					"description": "Echo the input text",
					"inputSchema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"text": map[string]any{"type": "string"},
						},
					},
				},
			},
		})
	case "tools/call":
		params := req.Params.(map[string]any)
		args := params["arguments"].(map[string]any)
		if params["name"] == "echo" {
			s.respond(req.ID, map[string]any{
				"content": []map[string]any{
					{"type": "text", "text": args["text"]},
				},
				"isError": false,
			})
			return
		}
		s.respond(req.ID, map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "unknown tool"},
			},
			"isError": true,
		})
	case "shutdown":
		s.respond(req.ID, map[string]any{})
	}
}

func TestClient_InitializeAndDiscover(t *testing.T) {
	c := newPipedClient(t, echoHandler)
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, StateInitialized, c.State())

	tools, err := c.DiscoverTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReady, c.State())

	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "fake", tools[0].ServerName)
	assert.True(t, c.HasTool("echo"))
	assert.False(t, c.HasTool("other"))
}

func TestClient_CallTool(t *testing.T) {
	c := newPipedClient(t, echoHandler)
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx))
	_, err := c.DiscoverTools(ctx)
	require.NoError(t, err)

	result := c.CallTool(ctx, "echo", map[string]any{"text": "hello world"})
	assert.True(t, result.Success)
	assert.Equal(t, "hello world", result.Output)
}

func TestClient_CallTool_ServerReportedError(t *testing.T) {
	c := newPipedClient(t, echoHandler)
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx))
	_, err := c.DiscoverTools(ctx)
	require.NoError(t, err)

	result := c.CallTool(ctx, "bogus", map[string]any{})
	assert.False(t, result.Success)
	assert.Equal(t, "unknown tool", result.Error)
}

func TestClient_CallTool_NotReady(t *testing.T) {
	c := newPipedClient(t, echoHandler)

	result := c.CallTool(context.Background(), "echo", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not ready")
}

func TestClient_RequestTimeout(t *testing.T) {
	// A server that answers nothing.
	c := newPipedClient(t, func(s *fakeServer, req rpcRequest) {})
	c.requestTimeout = 50 * time.Millisecond

	start := time.Now()
	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)

	// A timed-out request leaves nothing pending.
	c.mu.Lock()
	assert.Empty(t, c.pending)
	c.mu.Unlock()
}

func TestClient_ContextCancellation(t *testing.T) {
	c := newPipedClient(t, func(s *fakeServer, req rpcRequest) {})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.call(ctx, "tools/list", map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClient_ReadLoopIgnoresGarbage(t *testing.T) {
	c := newPipedClient(t, func(s *fakeServer, req rpcRequest) {
		// Noise before the real answer must not break correlation.
		s.out.Write([]byte("this is not json\n"))
		s.out.Write([]byte(`{"jsonrpc":"2.0","id":"unknown-id","result":{}}` + "\n"))
		echoHandler(s, req)
	})

	require.NoError(t, c.Initialize(context.Background()))
}

func TestClient_ShutdownIdempotent(t *testing.T) {
	c := newPipedClient(t, echoHandler)
	require.NoError(t, c.Initialize(context.Background()))

	c.Shutdown()
	assert.Equal(t, StateStopped, c.State())

	// A second shutdown is a no-op.
	c.Shutdown()
	assert.Equal(t, StateStopped, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unstarted", StateUnstarted.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}
