package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall records one tool invocation requested by the assistant.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message represents a single conversation turn.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Back-references set only on tool-role messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// Usage accumulates token consumption across model calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates one model call's token counts into the running totals.
func (u *Usage) Add(prompt, completion int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.TotalTokens += prompt + completion
}

// Session holds conversation history and state for one agent instance.
type Session struct {
	ID           string    `json:"session_id"`
	ParentID     string    `json:"parent_session_id,omitempty"`
	ChildIDs     []string  `json:"child_session_ids,omitempty"`
	WorkingDir   string    `json:"working_dir"`
	SystemPrompt string    `json:"system_prompt"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	TurnCount    int       `json:"turn_count"`
	Usage        Usage     `json:"usage"`
}

// New creates a session. A non-empty system prompt becomes the first message.
func New(workingDir, systemPrompt string) *Session {
	s := &Session{
		ID:           newSessionID(),
		WorkingDir:   workingDir,
		SystemPrompt: systemPrompt,
		CreatedAt:    time.Now(),
	}
	if systemPrompt != "" {
		s.Messages = append(s.Messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return s
}

func newSessionID() string {
	return uuid.NewString()[:8]
}

// AddUserMessage appends a user message and advances the turn counter.
func (s *Session) AddUserMessage(content string) {
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: content})
	s.TurnCount++
}

// AddAssistantMessage appends an assistant message, optionally carrying tool calls.
func (s *Session) AddAssistantMessage(content string, toolCalls []ToolCall) {
	s.Messages = append(s.Messages, Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AddToolResult appends a tool-role message referencing the originating call.
func (s *Session) AddToolResult(callID, toolName, result string) {
	s.Messages = append(s.Messages, Message{
		Role:       RoleTool,
		Content:    result,
		ToolCallID: callID,
		ToolName:   toolName,
	})
}

// RecordUsage accumulates token usage from one model call.
func (s *Session) RecordUsage(promptTokens, completionTokens int) {
	s.Usage.Add(promptTokens, completionTokens)
}

// Fork creates a child session with its own empty history. The child inherits
// the parent's system prompt unless one is supplied, and both sides record the
// lineage. No messages are copied.
func (s *Session) Fork(systemPrompt string) *Session {
	if systemPrompt == "" {
		systemPrompt = s.SystemPrompt
	}
	child := New(s.WorkingDir, systemPrompt)
	child.ParentID = s.ID
	s.ChildIDs = append(s.ChildIDs, child.ID)
	return child
}

// DefaultCompactionThreshold is the message count above which callers should compact.
const DefaultCompactionThreshold = 100

const compactionTailSize = 10

// NeedsCompaction reports whether the history has outgrown the threshold.
// This is a pure heuristic; the caller decides when to invoke Compact.
func (s *Session) NeedsCompaction(threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultCompactionThreshold
	}
	return len(s.Messages) > threshold
}

// Compact replaces older history with a summary message, keeping the system
// message and the last 10 messages. Anything older and not captured in the
// summary is gone; summary fidelity is the caller's responsibility.
func (s *Session) Compact(summary string) {
	var systemMsg *Message
	if len(s.Messages) > 0 && s.Messages[0].Role == RoleSystem {
		m := s.Messages[0]
		systemMsg = &m
	}

	summaryMsg := Message{
		Role:    RoleSystem,
		Content: fmt.Sprintf("[CONVERSATION SUMMARY]\n%s\n[END SUMMARY]", summary),
	}

	var tail []Message
	if len(s.Messages) > compactionTailSize {
		tail = append(tail, s.Messages[len(s.Messages)-compactionTailSize:]...)
	}

	s.Messages = s.Messages[:0]
	if systemMsg != nil {
		s.Messages = append(s.Messages, *systemMsg)
	}
	s.Messages = append(s.Messages, summaryMsg)
	s.Messages = append(s.Messages, tail...)
}

// Clear drops all messages except the system prompt and resets the turn counter.
func (s *Session) Clear() {
	var systemMsg *Message
	if len(s.Messages) > 0 && s.Messages[0].Role == RoleSystem {
		m := s.Messages[0]
		systemMsg = &m
	}
	s.Messages = s.Messages[:0]
	if systemMsg != nil {
		s.Messages = append(s.Messages, *systemMsg)
	}
	s.TurnCount = 0
}

// Summary returns a one-line description of the session state for display.
func (s *Session) Summary() string {
	return fmt.Sprintf("Session %s | Turn %d | %d messages | %d tokens | %s",
		s.ID, s.TurnCount, len(s.Messages), s.Usage.TotalTokens, s.WorkingDir)
}
