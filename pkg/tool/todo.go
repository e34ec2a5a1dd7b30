package tool

import (
	"fmt"
	"strings"
	"sync"
)

// TodoItem is one entry in the shared task list.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"` // pending | in_progress | completed
}

// TodoList is a simple in-memory task list. A parent agent shares its list
// with spawned subagents.
type TodoList struct {
	mu    sync.Mutex
	items []TodoItem
}

// NewTodoList creates an empty list.
func NewTodoList() *TodoList {
	return &TodoList{}
}

// Set replaces the list contents and returns the rendered list.
func (t *TodoList) Set(items []TodoItem) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = make([]TodoItem, len(items))
	copy(t.items, items)
	for i := range t.items {
		if t.items[i].Status == "" {
			t.items[i].Status = "pending"
		}
	}
	return t.renderLocked()
}

// Render returns the current list as display text.
func (t *TodoList) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderLocked()
}

func (t *TodoList) renderLocked() string {
	if len(t.items) == 0 {
		return "(empty todo list)"
	}

	markers := map[string]string{
		"pending":     "[ ]",
		"in_progress": "[~]",
		"completed":   "[x]",
	}

	var b strings.Builder
	for i, item := range t.items {
		marker, ok := markers[item.Status]
		if !ok {
			marker = "[ ]"
		}
		fmt.Fprintf(&b, "%d. %s %s", i+1, marker, item.Content)
		if i < len(t.items)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
