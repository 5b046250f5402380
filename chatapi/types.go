package chatapi

import "time"

// WebSearchToolID 是内置联网搜索工具的固定 ID。
const WebSearchToolID = "web_search"

// Message 是调用方传入的一条对话消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDescriptor 标识用户注册的一个 MCP 工具端点（或内置搜索工具）。
// 在一次编排运行期间只读。
type ToolDescriptor struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Tag         string `json:"tag,omitempty"`
	Description string `json:"description,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// IsWebSearch 判断描述符是否为内置搜索工具。
func (d ToolDescriptor) IsWebSearch() bool {
	return d.ID == WebSearchToolID
}

// ChatOptions 是 /api/chat 识别的选项集合。
type ChatOptions struct {
	Model       string           `json:"model,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"maxTokens,omitempty"`
	WebSearch   bool             `json:"webSearch,omitempty"`
	SearchTool  *ToolDescriptor  `json:"searchTool,omitempty"`
	Tools       []ToolDescriptor `json:"tools,omitempty"`
	Thinking    bool             `json:"thinking,omitempty"`
	AutoTitle   bool             `json:"autoTitle,omitempty"`
}

// ChatRequest 是 /api/chat 的请求体。
type ChatRequest struct {
	Messages []Message   `json:"messages"`
	Options  ChatOptions `json:"options"`
}

// ToolInfo 是 /api/tools 返回的单个工具清单项。
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

// ToolListResponse 是 /api/tools 的响应体。
type ToolListResponse struct {
	Tools []ToolInfo `json:"tools"`
}

// ErrorEnvelope 是流式开始前失败时返回的结构化错误。
type ErrorEnvelope struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

// NewErrorEnvelope 构造错误包；code 为机器可读错误码（如 API_ERROR）。
func NewErrorEnvelope(code, message string) ErrorEnvelope {
	return ErrorEnvelope{
		Success: false,
		Error: ErrorDetail{
			Message:   message,
			Code:      code,
			Timestamp: time.Now().Format(time.RFC3339),
		},
	}
}
