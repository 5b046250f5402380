package deepseek

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestToolDefinitionsFromMCPTools(t *testing.T) {
	tools := []mcp.Tool{
		{
			Name:        "get_weather",
			Description: "查询天气",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"city": map[string]any{"type": "string"},
				},
				Required: []string{"city"},
			},
		},
		{Name: "get_weather", Description: "重复项应被去重"},
		{Name: "", Description: "无名工具应被跳过"},
	}

	defs := ToolDefinitionsFromMCPTools(tools)
	require.Len(t, defs, 1)
	require.Equal(t, "function", defs[0].Type)
	require.Equal(t, "get_weather", defs[0].Function.Name)
	require.Equal(t, "查询天气", defs[0].Function.Description)
	require.Equal(t, "object", defs[0].Function.Parameters["type"])
	props, ok := defs[0].Function.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "city")
}

func TestToolDefinitionsFromMCPTools_Empty(t *testing.T) {
	require.Nil(t, ToolDefinitionsFromMCPTools(nil))
	require.Nil(t, ToolDefinitionsFromMCPTools([]mcp.Tool{{Name: ""}}))
}
