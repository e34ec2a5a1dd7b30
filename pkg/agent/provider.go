package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/freddiev4/rune/pkg/session"
	"github.com/freddiev4/rune/pkg/tool"
)

// Provider is a chat-completions backend capable of tool calling.
type Provider interface {
	// Complete makes one model call.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Request contains the parameters for one model call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []session.Message
	Tools        []tool.Schema
	Temperature  float64
	MaxTokens    int
}

// Response is the provider-neutral result of a model call.
type Response struct {
	Content          string
	ToolCalls        []session.ToolCall
	PromptTokens     int
	CompletionTokens int
}

// NewProvider creates a provider by name.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// IsRetryableError reports whether a provider error is transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "timeout") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}

	return false
}
