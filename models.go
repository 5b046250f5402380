package mcpchat

import "strings"

const (
	// DefaultAPIURL 是 DeepSeek chat completions 流式接口的默认地址。
	DefaultAPIURL = "https://api.deepseek.com/v1/chat/completions"
	// DefaultModel 是未指定模型时使用的默认模型。
	DefaultModel = "deepseek-chat"
)

var presetModelIDs = map[string]string{
	"deepseek-chat":     "DeepSeek-Chat",
	"deepseek-reasoner": "DeepSeek-Reasoner",
}

// thinkingModelIDs 标记自身即输出 reasoning_content 的模型。
var thinkingModelIDs = map[string]struct{}{
	"deepseek-reasoner": {},
}

type PresetModel struct {
	ID   string
	Name string
}

// PresetModels 返回内置的模型列表（用于前端模型选择）。
func PresetModels() []PresetModel {
	out := make([]PresetModel, 0, len(presetModelIDs))
	for id, name := range presetModelIDs {
		out = append(out, PresetModel{ID: id, Name: name})
	}
	return out
}

// NormalizeModelID 清理模型 ID；为空时返回默认模型。
func NormalizeModelID(modelID string) string {
	trimmed := strings.TrimSpace(modelID)
	if trimmed == "" {
		return DefaultModel
	}
	return trimmed
}

// IsSupportedModelID 判断是否为受支持的模型 ID。
func IsSupportedModelID(modelID string) bool {
	_, ok := presetModelIDs[NormalizeModelID(modelID)]
	return ok
}

// IsThinkingModel 判断模型是否默认带深度思考输出。
func IsThinkingModel(modelID string) bool {
	_, ok := thinkingModelIDs[NormalizeModelID(modelID)]
	return ok
}
