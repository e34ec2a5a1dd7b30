// Package mcp speaks the Model Context Protocol to external tool servers:
// JSON-RPC 2.0 over newline-delimited messages on a subprocess's stdio.
//
// Invariants:
// - Every request carries a fresh unique id; responses are matched by id.
// - A request that never receives a response fails with ErrTimeout within a
//   bounded time of the configured timeout.
// - A server's discovered tool list is immutable after discovery succeeds.
// - CallTool never surfaces a raw transport error; failures become failed
//   tool results naming the server.
// - Shutdown is best-effort and idempotent.
package mcp
