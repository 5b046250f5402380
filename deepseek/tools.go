package deepseek

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFunction 是 function 工具的函数定义。
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolDefinition 是 chat completions 请求体 tools 数组元素。
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolDefinitionsFromMCPTools 把 MCP 工具清单映射为 function 工具定义（按名去重）。
func ToolDefinitionsFromMCPTools(tools []mcp.Tool) []ToolDefinition {
	if len(tools) == 0 {
		return nil
	}

	out := make([]ToolDefinition, 0, len(tools))
	nameSet := make(map[string]struct{})
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		if _, exists := nameSet[tool.Name]; exists {
			continue
		}
		nameSet[tool.Name] = struct{}{}

		out = append(out, ToolDefinition{
			Type: "function",
			Function: ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  inputSchemaToParameters(tool.InputSchema),
			},
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// inputSchemaToParameters 把 MCP InputSchema 转成 JSON Schema map。
func inputSchemaToParameters(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil
	}
	return params
}
