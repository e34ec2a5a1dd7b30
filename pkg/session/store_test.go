package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	s := New("/tmp/work", "system prompt")
	s.AddUserMessage("hello")
	s.AddAssistantMessage("hi", []ToolCall{
		{ID: "call-1", Name: "shell", Arguments: `{"command":"ls"}`},
	})
	s.AddToolResult("call-1", "shell", "file.txt")
	s.RecordUsage(100, 50)

	require.NoError(t, store.Save(s))

	loaded, err := store.Load(s.ID)
	require.NoError(t, err)

	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.WorkingDir, loaded.WorkingDir)
	assert.Equal(t, s.SystemPrompt, loaded.SystemPrompt)
	assert.Equal(t, s.TurnCount, loaded.TurnCount)
	assert.Equal(t, s.Usage, loaded.Usage)
	require.Len(t, loaded.Messages, len(s.Messages))
	assert.Equal(t, s.Messages[2].ToolCalls, loaded.Messages[2].ToolCalls)
	assert.Equal(t, "call-1", loaded.Messages[3].ToolCallID)
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestStore_ValidateID(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name string
		id   string
	}{
		{name: "empty", id: ""},
		{name: "dot dot", id: "../escape"},
		{name: "slash", id: "a/b"},
		{name: "backslash", id: `a\b`},
		{name: "null byte", id: "abc\x00def"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Load(tt.id)
			assert.Error(t, err)

			s := New("/tmp", "")
			s.ID = tt.id
			assert.Error(t, store.Save(s))
		})
	}
}

func TestStore_DeleteMissingIsNotError(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Delete("deadbeef"))
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	a := New("/tmp", "")
	b := New("/tmp", "")
	require.NoError(t, store.Save(a))
	require.NoError(t, store.Save(b))

	ids, err = store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	require.NoError(t, store.Delete(a.ID))
	ids, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)
}
