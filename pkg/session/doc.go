// Package session tracks conversation state for one agent instance.
//
// Invariants:
// - A session's first message, when a system prompt was supplied, is that prompt.
// - Forked children start with an empty history and record parent/child lineage.
// - Compaction keeps the system message, one summary message, and the last 10 messages.
//
// Usage:
//
//	sess := session.New("/work", "You are a coding assistant.")
//	sess.AddUserMessage("hello")
//	child := sess.Fork("")
//	_ = child
package session
