package deepseek

import (
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// toolCallDelta 是 delta 流中单条 tool_calls 片段。
// id/name/arguments 都可能被拆分到多帧，需按 index 独立拼接。
type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type pendingToolCall struct {
	index     int
	callType  string
	id        strings.Builder
	name      strings.Builder
	arguments strings.Builder
}

// toolCallAssembler 按 provider 下发的 index 重组 tool_calls：
// 首个片段到达时创建条目，其后 name 与 arguments 各自按到达顺序拼接。
type toolCallAssembler struct {
	byIndex map[int]*pendingToolCall
	order   []int
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{byIndex: make(map[int]*pendingToolCall)}
}

func (a *toolCallAssembler) apply(delta toolCallDelta) {
	call, ok := a.byIndex[delta.Index]
	if !ok {
		call = &pendingToolCall{index: delta.Index}
		a.byIndex[delta.Index] = call
		a.order = append(a.order, delta.Index)
	}
	if delta.Type != "" {
		call.callType = delta.Type
	}
	call.id.WriteString(delta.ID)
	call.name.WriteString(delta.Function.Name)
	call.arguments.WriteString(delta.Function.Arguments)
}

func (a *toolCallAssembler) finalize() []schema.ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]schema.ToolCall, 0, len(a.order))
	for _, index := range a.order {
		call := a.byIndex[index]
		callID := strings.TrimSpace(call.id.String())
		if callID == "" {
			callID = "call_" + uuid.NewString()
		}
		callType := call.callType
		if callType == "" {
			callType = "function"
		}
		idx := call.index
		out = append(out, schema.ToolCall{
			Index: &idx,
			ID:    callID,
			Type:  callType,
			Function: schema.FunctionCall{
				Name:      call.name.String(),
				Arguments: call.arguments.String(),
			},
		})
	}
	return out
}
