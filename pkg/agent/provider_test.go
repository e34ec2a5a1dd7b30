package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("openai", "test-key")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = NewProvider("anthropic", "test-key")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = NewProvider("gemini", "test-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider: gemini")
}

func TestIsRetryableError(t *testing.T) {
	retryable := []string{
		"429 too many requests",
		"rate limit exceeded",
		"500 internal server error",
		"502 bad gateway",
		"503 service unavailable",
		"connection reset by peer",
		"request timeout",
	}
	for _, msg := range retryable {
		assert.True(t, IsRetryableError(errors.New(msg)), msg)
	}

	permanent := []string{
		"401 unauthorized",
		"invalid request: missing model",
		"404 not found",
	}
	for _, msg := range permanent {
		assert.False(t, IsRetryableError(errors.New(msg)), msg)
	}

	assert.False(t, IsRetryableError(nil))
}
