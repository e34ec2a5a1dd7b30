package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolsListDecoding(t *testing.T) {
	payload := `{
		"tools": [
			{"name": "echo", "description": "echoes", "inputSchema": {"type": "object", "properties": {"text": {"type": "string"}}}},
			{"name": "add", "description": "adds numbers"}
		]
	}`

	var result toolsListResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	require.Len(t, result.Tools, 2)

	assert.Equal(t, "echo", result.Tools[0].Name)
	assert.Equal(t, "echoes", result.Tools[0].Description)
	assert.Equal(t, "object", result.Tools[0].InputSchema["type"])

	assert.Equal(t, "add", result.Tools[1].Name)
	assert.Nil(t, result.Tools[1].InputSchema)

	// ServerName is never on the wire; discovery stamps it afterwards.
	for _, tool := range result.Tools {
		assert.Empty(t, tool.ServerName)
	}
}

func TestResponseID(t *testing.T) {
	assert.Equal(t, "abc-123", responseID("abc-123"))
	assert.Equal(t, "7", responseID(float64(7)))
	assert.Equal(t, "7.5", responseID(float64(7.5)))
	assert.Equal(t, "", responseID(nil))
	assert.Equal(t, "", responseID(true))
}
