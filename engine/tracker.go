package engine

import "github.com/LubyRuffy/mcpchat/chatapi"

// toolTracker 维护一轮内已启动工具调用的状态。
// 按 call id 记录、按启动顺序序列化，结束的调用原位替换为 end 记录。
type toolTracker struct {
	byID  map[string]*chatapi.ToolActivity
	order []string
}

func newToolTracker() *toolTracker {
	return &toolTracker{byID: make(map[string]*chatapi.ToolActivity)}
}

func (t *toolTracker) start(callID, toolName string) {
	if _, ok := t.byID[callID]; ok {
		return
	}
	t.byID[callID] = &chatapi.ToolActivity{Type: "start", ToolName: toolName}
	t.order = append(t.order, callID)
}

func (t *toolTracker) finish(callID string, params map[string]any, result any) {
	activity, ok := t.byID[callID]
	if !ok {
		return
	}
	activity.Type = "end"
	activity.Params = params
	activity.Result = result
}

// snapshot 按启动顺序导出当前状态的副本。
func (t *toolTracker) snapshot() []chatapi.ToolActivity {
	out := make([]chatapi.ToolActivity, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}
