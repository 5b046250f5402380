package chatapi

// ProgressType 是进度事件的判别标签。
type ProgressType string

const (
	// ProgressThink 深度思考文本片段。
	ProgressThink ProgressType = "think"
	// ProgressTime 本轮思考耗时（秒），每轮至多一次。
	ProgressTime ProgressType = "time"
	// ProgressMiddle 正式回答文本片段。
	ProgressMiddle ProgressType = "middle"
	// ProgressLoading 本轮模型调用开始。
	ProgressLoading ProgressType = "loading"
	// ProgressSearch 搜索工具的调用进度。
	ProgressSearch ProgressType = "search"
	// ProgressTools 普通工具的调用进度（累积数组）。
	ProgressTools ProgressType = "tools"
)

// Event 是推送给调用方的一条进度记录。
// Content 的实际结构由 Type 决定（见下方各 payload 类型）。
type Event struct {
	Type    ProgressType `json:"type"`
	Content any          `json:"content"`
}

// TextChunk 是 think/middle 事件的 payload。
type TextChunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// ThinkSeconds 是 time 事件的 payload。
type ThinkSeconds struct {
	Index   int `json:"index"`
	Content int `json:"content"`
}

// LoadingMark 是 loading 事件的 payload。
type LoadingMark struct {
	Index   int  `json:"index"`
	Content bool `json:"content"`
}

// ToolActivity 描述一次工具调用的开始或结束。
// Type 为 start 时只有 ToolName；end 时补充 Params 与 Result。
type ToolActivity struct {
	Type     string         `json:"type"`
	ToolName string         `json:"toolName"`
	Params   map[string]any `json:"params,omitempty"`
	Result   any            `json:"result,omitempty"`
}

// SearchProgress 是 search 事件的 payload。
type SearchProgress struct {
	Index   int          `json:"index"`
	Content ToolActivity `json:"content"`
}

// ToolsProgress 是 tools 事件的 payload：本轮已启动的全部工具调用，
// 按调用顺序排列，结束的调用原位替换为 end 记录。
type ToolsProgress struct {
	Index   int            `json:"index"`
	Content []ToolActivity `json:"content"`
}

func ThinkEvent(round int, text string) Event {
	return Event{Type: ProgressThink, Content: TextChunk{Index: round, Content: text}}
}

func TimeEvent(round int, seconds int) Event {
	return Event{Type: ProgressTime, Content: ThinkSeconds{Index: round, Content: seconds}}
}

func MiddleEvent(round int, text string) Event {
	return Event{Type: ProgressMiddle, Content: TextChunk{Index: round, Content: text}}
}

func LoadingEvent(round int) Event {
	return Event{Type: ProgressLoading, Content: LoadingMark{Index: round, Content: true}}
}

func SearchEvent(round int, activity ToolActivity) Event {
	return Event{Type: ProgressSearch, Content: SearchProgress{Index: round, Content: activity}}
}

func ToolsEvent(round int, activities []ToolActivity) Event {
	return Event{Type: ProgressTools, Content: ToolsProgress{Index: round, Content: activities}}
}
