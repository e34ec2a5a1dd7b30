package mcp

import (
	"encoding/json"
	"strconv"
)

const protocolVersion = "2024-11-05"

// JSON-RPC 2.0 messages exchanged with tool servers.

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id,omitempty"`
}

// rpcNotification is a request without an id. Servers must not answer it.
type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	// ID is any so that numeric ids from nonconforming servers still decode.
	ID any `json:"id"`
}

// responseID normalizes a decoded JSON-RPC id to its correlation-table key.
func responseID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Tool is one tool exposed by a server. InputSchema is the tool's JSON-schema
// parameter object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	ServerName  string         `json:"server_name"`
}

// toolsListResult is the tools/list response payload. ServerName is not on
// the wire; DiscoverTools fills it in.
type toolsListResult struct {
	Tools []Tool `json:"tools"`
}

// callToolResult is the tools/call response payload. Content blocks of type
// "text" carry the output.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// ServerConfig describes one configured tool server.
type ServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}
