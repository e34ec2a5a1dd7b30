package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SystemPromptBecomesFirstMessage(t *testing.T) {
	s := New("/tmp/work", "You are a helpful assistant.")

	require.Len(t, s.Messages, 1)
	assert.Equal(t, RoleSystem, s.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant.", s.Messages[0].Content)
	assert.Equal(t, 0, s.TurnCount)
	assert.Len(t, s.ID, 8)
}

func TestNew_EmptySystemPrompt(t *testing.T) {
	s := New("/tmp/work", "")
	assert.Empty(t, s.Messages)
}

func TestSession_AddUserMessage_AdvancesTurnCounter(t *testing.T) {
	s := New("/tmp/work", "system")

	s.AddUserMessage("first")
	s.AddUserMessage("second")

	assert.Equal(t, 2, s.TurnCount)

	// Assistant and tool messages do not advance the counter.
	s.AddAssistantMessage("reply", nil)
	s.AddToolResult("call-1", "shell", "output")
	assert.Equal(t, 2, s.TurnCount)
}

func TestSession_AddToolResult_BackReferences(t *testing.T) {
	s := New("/tmp/work", "system")
	s.AddToolResult("call-42", "read_file", "contents")

	msg := s.Messages[len(s.Messages)-1]
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "call-42", msg.ToolCallID)
	assert.Equal(t, "read_file", msg.ToolName)
	assert.Equal(t, "contents", msg.Content)
}

func TestUsage_Add(t *testing.T) {
	var u Usage
	u.Add(100, 50)
	u.Add(10, 5)

	assert.Equal(t, 110, u.PromptTokens)
	assert.Equal(t, 55, u.CompletionTokens)
	assert.Equal(t, 165, u.TotalTokens)
}

func TestSession_Fork(t *testing.T) {
	parent := New("/tmp/work", "parent prompt")
	parent.AddUserMessage("hello")
	parent.AddAssistantMessage("hi", nil)

	child := parent.Fork("child prompt")

	// Lineage is recorded on both sides.
	assert.Equal(t, parent.ID, child.ParentID)
	assert.Contains(t, parent.ChildIDs, child.ID)

	// The child starts fresh: only its system prompt, no copied history.
	require.Len(t, child.Messages, 1)
	assert.Equal(t, "child prompt", child.Messages[0].Content)
	assert.Equal(t, parent.WorkingDir, child.WorkingDir)
	assert.Equal(t, 0, child.TurnCount)
}

func TestSession_Fork_InheritsSystemPrompt(t *testing.T) {
	parent := New("/tmp/work", "parent prompt")
	child := parent.Fork("")
	assert.Equal(t, "parent prompt", child.SystemPrompt)
}

func TestSession_Fork_UsageIsIndependent(t *testing.T) {
	parent := New("/tmp/work", "system")
	parent.RecordUsage(100, 50)

	child := parent.Fork("")
	child.RecordUsage(10, 5)

	// Child usage merges into the parent only when the caller says so.
	assert.Equal(t, 150, parent.Usage.TotalTokens)
	parent.Usage.Add(child.Usage.PromptTokens, child.Usage.CompletionTokens)

	assert.Equal(t, 110, parent.Usage.PromptTokens)
	assert.Equal(t, 55, parent.Usage.CompletionTokens)
	assert.Equal(t, 165, parent.Usage.TotalTokens)
	assert.Equal(t, 15, child.Usage.TotalTokens)
}

func TestSession_NeedsCompaction(t *testing.T) {
	s := New("/tmp/work", "system")
	assert.False(t, s.NeedsCompaction(10))

	for i := 0; i < 10; i++ {
		s.AddUserMessage("msg")
	}
	// 11 messages with threshold 10.
	assert.True(t, s.NeedsCompaction(10))
	assert.False(t, s.NeedsCompaction(0)) // default threshold is 100
}

func TestSession_Compact(t *testing.T) {
	s := New("/tmp/work", "system prompt")
	for i := 0; i < 30; i++ {
		s.AddUserMessage("user msg")
		s.AddAssistantMessage("assistant msg", nil)
	}

	s.Compact("key decisions were made")

	// system + summary + last 10
	require.Len(t, s.Messages, 12)
	assert.Equal(t, RoleSystem, s.Messages[0].Role)
	assert.Equal(t, "system prompt", s.Messages[0].Content)

	summary := s.Messages[1]
	assert.Equal(t, RoleSystem, summary.Role)
	assert.True(t, strings.HasPrefix(summary.Content, "[CONVERSATION SUMMARY]\n"))
	assert.Contains(t, summary.Content, "key decisions were made")
	assert.True(t, strings.HasSuffix(summary.Content, "\n[END SUMMARY]"))
}

func TestSession_Compact_WithoutSystemMessage(t *testing.T) {
	s := New("/tmp/work", "")
	for i := 0; i < 20; i++ {
		s.AddUserMessage("msg")
	}

	s.Compact("summary")

	// summary + last 10
	require.Len(t, s.Messages, 11)
	assert.Contains(t, s.Messages[0].Content, "summary")
}

func TestSession_Clear(t *testing.T) {
	s := New("/tmp/work", "system")
	s.AddUserMessage("hello")
	s.AddAssistantMessage("hi", nil)

	s.Clear()

	require.Len(t, s.Messages, 1)
	assert.Equal(t, RoleSystem, s.Messages[0].Role)
	assert.Equal(t, 0, s.TurnCount)
}

func TestSession_Summary(t *testing.T) {
	s := New("/tmp/work", "system")
	s.AddUserMessage("hello")
	s.RecordUsage(10, 5)

	summary := s.Summary()
	assert.Contains(t, summary, s.ID)
	assert.Contains(t, summary, "Turn 1")
	assert.Contains(t, summary, "15 tokens")
	assert.Contains(t, summary, "/tmp/work")
}
