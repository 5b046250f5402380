package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/LubyRuffy/mcpchat/chatapi"
	"github.com/LubyRuffy/mcpchat/deepseek"
)

type scriptedRound struct {
	deltas []deepseek.StreamDelta
	reply  *schema.Message
	err    error
}

// fakeStreamer 按脚本逐轮应答，并记录每轮收到的消息历史。
type fakeStreamer struct {
	rounds []scriptedRound
	inputs [][]*schema.Message
	calls  int
}

func (f *fakeStreamer) StreamChat(ctx context.Context, input []*schema.Message, onDelta deepseek.DeltaHandler) (*schema.Message, error) {
	snapshot := make([]*schema.Message, len(input))
	copy(snapshot, input)
	f.inputs = append(f.inputs, snapshot)

	if f.calls >= len(f.rounds) {
		return nil, errors.New("unexpected extra round")
	}
	round := f.rounds[f.calls]
	f.calls++

	for _, delta := range round.deltas {
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return nil, err
			}
		}
	}
	if round.err != nil {
		return nil, round.err
	}
	return round.reply, nil
}

type fakeSession struct {
	tools      []mcp.Tool
	callTool   func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	closeCount int
}

func (f *fakeSession) Tools() []mcp.Tool { return f.tools }

func (f *fakeSession) Owns(name string) bool {
	for _, tool := range f.tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func (f *fakeSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if f.callTool != nil {
		return f.callTool(ctx, name, args)
	}
	return &mcp.CallToolResult{}, nil
}

func (f *fakeSession) Close() error {
	f.closeCount++
	return nil
}

type eventRecorder struct {
	events []chatapi.Event
}

func (r *eventRecorder) sink(event chatapi.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) types() []chatapi.ProgressType {
	out := make([]chatapi.ProgressType, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

func (r *eventRecorder) middleText() string {
	var sb strings.Builder
	for _, event := range r.events {
		if event.Type != chatapi.ProgressMiddle {
			continue
		}
		sb.WriteString(event.Content.(chatapi.TextChunk).Content)
	}
	return sb.String()
}

func newEngineWith(t *testing.T, streamer ChatStreamer, session ToolSession) (*Engine, *chatapi.ChatOptions) {
	t.Helper()
	var gotOptions chatapi.ChatOptions
	e, err := New(Config{
		NewChatModel: func(options chatapi.ChatOptions, tools []deepseek.ToolDefinition) (ChatStreamer, error) {
			gotOptions = options
			return streamer, nil
		},
		OpenSession: func(ctx context.Context, descriptor chatapi.ToolDescriptor) (ToolSession, error) {
			if session == nil {
				return nil, errors.New("no session configured")
			}
			return session, nil
		},
	})
	require.NoError(t, err)
	return e, &gotOptions
}

func TestRun_PlainChat(t *testing.T) {
	one := 1
	streamer := &fakeStreamer{rounds: []scriptedRound{{
		deltas: []deepseek.StreamDelta{
			{ReasoningContent: "想想"},
			{Content: "你", ThinkSeconds: &one},
			{Content: "好"},
		},
		reply: &schema.Message{Role: schema.Assistant, Content: "你好"},
	}}}
	e, _ := newEngineWith(t, streamer, nil)

	rec := &eventRecorder{}
	err := e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "打个招呼"}},
	}, rec.sink)
	require.NoError(t, err)

	require.Equal(t, []chatapi.ProgressType{
		chatapi.ProgressLoading,
		chatapi.ProgressThink,
		chatapi.ProgressTime,
		chatapi.ProgressMiddle,
		chatapi.ProgressMiddle,
	}, rec.types())
	require.Equal(t, "你好", rec.middleText())

	// 无工具时不注入任何系统提示词。
	require.Len(t, streamer.inputs, 1)
	require.Equal(t, schema.User, streamer.inputs[0][0].Role)
}

func TestRun_WeatherToolScenario(t *testing.T) {
	toolResult := &mcp.CallToolResult{Content: []mcp.Content{
		mcp.TextContent{Type: "text", Text: `{"temp":21,"desc":"晴"}`},
	}}
	session := &fakeSession{
		tools: []mcp.Tool{{Name: "get_weather", Description: "查询天气"}},
		callTool: func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
			require.Equal(t, "get_weather", name)
			require.Equal(t, map[string]any{"city": "Paris"}, args)
			return toolResult, nil
		},
	}
	streamer := &fakeStreamer{rounds: []scriptedRound{
		{
			reply: &schema.Message{
				Role: schema.Assistant,
				ToolCalls: []schema.ToolCall{{
					ID:   "call_1",
					Type: "function",
					Function: schema.FunctionCall{
						Name:      "get_weather",
						Arguments: `{"city":"Paris"}`,
					},
				}},
			},
		},
		{
			deltas: []deepseek.StreamDelta{{Content: "巴黎"}, {Content: "晴天"}},
			reply:  &schema.Message{Role: schema.Assistant, Content: "巴黎晴天"},
		},
	}}
	e, _ := newEngineWith(t, streamer, session)

	rec := &eventRecorder{}
	err := e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "weather in Paris"}},
		Options: chatapi.ChatOptions{
			Tools: []chatapi.ToolDescriptor{{ID: "weather", Name: "天气", URL: "http://tools.local/sse"}},
		},
	}, rec.sink)
	require.NoError(t, err)

	require.Equal(t, []chatapi.ProgressType{
		chatapi.ProgressLoading,
		chatapi.ProgressTools,
		chatapi.ProgressTools,
		chatapi.ProgressLoading,
		chatapi.ProgressMiddle,
		chatapi.ProgressMiddle,
	}, rec.types())

	start := rec.events[1].Content.(chatapi.ToolsProgress)
	require.Equal(t, 0, start.Index)
	require.Len(t, start.Content, 1)
	require.Equal(t, "start", start.Content[0].Type)
	require.Equal(t, "天气(get_weather)", start.Content[0].ToolName)
	require.Nil(t, start.Content[0].Result)

	end := rec.events[2].Content.(chatapi.ToolsProgress)
	require.Equal(t, "end", end.Content[0].Type)
	require.Equal(t, map[string]any{"city": "Paris"}, end.Content[0].Params)
	require.Equal(t, toolResult, end.Content[0].Result)

	// 第 1 轮的 middle 事件携带轮次 1。
	require.Equal(t, 1, rec.events[4].Content.(chatapi.TextChunk).Index)
	require.Equal(t, "巴黎晴天", rec.middleText())

	// 第 1 轮历史：system(函数调用指示)、user、assistant(tool_calls)、tool。
	require.Len(t, streamer.inputs, 2)
	round1 := streamer.inputs[1]
	require.Len(t, round1, 4)
	require.Equal(t, schema.System, round1[0].Role)
	require.Equal(t, schema.User, round1[1].Role)
	require.Equal(t, schema.Assistant, round1[2].Role)
	require.Len(t, round1[2].ToolCalls, 1)
	require.Equal(t, schema.Tool, round1[3].Role)
	require.Equal(t, "call_1", round1[3].ToolCallID)
	require.Contains(t, round1[3].Content, `"temp":21`)

	require.Equal(t, 1, session.closeCount)
}

func TestRun_SearchRouting(t *testing.T) {
	session := &fakeSession{
		tools: []mcp.Tool{{Name: "web_search_exec"}},
		callTool: func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: `[{"title":"x","link":"http://x","snippet":"摘要"}]`},
			}}, nil
		},
	}
	streamer := &fakeStreamer{rounds: []scriptedRound{
		{
			reply: &schema.Message{
				Role: schema.Assistant,
				ToolCalls: []schema.ToolCall{{
					ID:       "call_s",
					Function: schema.FunctionCall{Name: "web_search_exec", Arguments: `{"query":"x"}`},
				}},
			},
		},
		{
			deltas: []deepseek.StreamDelta{{Content: "答案"}},
			reply:  &schema.Message{Role: schema.Assistant, Content: "答案"},
		},
	}}
	e, _ := newEngineWith(t, streamer, session)

	rec := &eventRecorder{}
	err := e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "查一下x"}},
		Options: chatapi.ChatOptions{
			WebSearch:  true,
			SearchTool: &chatapi.ToolDescriptor{ID: chatapi.WebSearchToolID, Name: "联网搜索", URL: "http://search.local/sse"},
		},
	}, rec.sink)
	require.NoError(t, err)

	require.Equal(t, []chatapi.ProgressType{
		chatapi.ProgressLoading,
		chatapi.ProgressSearch,
		chatapi.ProgressSearch,
		chatapi.ProgressLoading,
		chatapi.ProgressMiddle,
	}, rec.types())

	start := rec.events[1].Content.(chatapi.SearchProgress)
	require.Equal(t, "start", start.Content.Type)
	require.Equal(t, "联网搜索(web_search_exec)", start.Content.ToolName)
	require.Nil(t, start.Content.Params)
	require.Nil(t, start.Content.Result)

	// 搜索结果从工具包里拆出为普通列表。
	end := rec.events[2].Content.(chatapi.SearchProgress)
	require.Equal(t, "end", end.Content.Type)
	require.Equal(t, map[string]any{"query": "x"}, end.Content.Params)
	require.Equal(t, []any{map[string]any{"title": "x", "link": "http://x", "snippet": "摘要"}}, end.Content.Result)

	// 第 1 轮历史里注入了搜索作答提示词，工具结果被排版成网页块。
	round1 := streamer.inputs[1]
	require.Equal(t, schema.System, round1[0].Role)
	require.Contains(t, round1[0].Content, "网络研究")
	toolTurn := round1[len(round1)-1]
	require.Equal(t, schema.Tool, toolTurn.Role)
	require.Contains(t, toolTurn.Content, "[webpage 1 begin]")
	require.Contains(t, toolTurn.Content, "Title: x")

	require.Equal(t, 1, session.closeCount)
}

func TestRun_StreamErrorAppendsMarker(t *testing.T) {
	session := &fakeSession{tools: []mcp.Tool{{Name: "noop"}}}
	streamer := &fakeStreamer{rounds: []scriptedRound{{
		deltas: []deepseek.StreamDelta{{Content: "部分内容"}},
		err:    errors.New("upstream exploded"),
	}}}
	e, _ := newEngineWith(t, streamer, session)

	rec := &eventRecorder{}
	err := e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "hi"}},
		Options: chatapi.ChatOptions{
			Tools: []chatapi.ToolDescriptor{{ID: "t", URL: "http://tools.local/sse"}},
		},
	}, rec.sink)
	require.Error(t, err)

	last := rec.events[len(rec.events)-1]
	require.Equal(t, chatapi.ProgressMiddle, last.Type)
	require.Equal(t, errorMarker, last.Content.(chatapi.TextChunk).Content)

	// 出错路径同样关闭会话。
	require.Equal(t, 1, session.closeCount)
}

func TestRun_OpenSessionErrorAborts(t *testing.T) {
	streamer := &fakeStreamer{}
	e, _ := newEngineWith(t, streamer, nil)

	rec := &eventRecorder{}
	err := e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "hi"}},
		Options: chatapi.ChatOptions{
			Tools: []chatapi.ToolDescriptor{{ID: "t", URL: "http://tools.local/sse"}},
		},
	}, rec.sink)
	require.Error(t, err)
	require.Zero(t, streamer.calls, "会话建立失败时不应发起模型调用")

	// 首个事件前失败：流尚未开始，不输出任何事件（包括异常标记）。
	require.Empty(t, rec.events)
}

func TestRun_ModelConstructionErrorEmitsNothing(t *testing.T) {
	e, err := New(Config{
		NewChatModel: func(options chatapi.ChatOptions, tools []deepseek.ToolDefinition) (ChatStreamer, error) {
			return nil, errors.New("bad api key")
		},
	})
	require.NoError(t, err)

	rec := &eventRecorder{}
	err = e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "hi"}},
	}, rec.sink)
	require.Error(t, err)
	require.Empty(t, rec.events)
}

type cancelStreamer struct {
	cancel context.CancelFunc
}

func (s *cancelStreamer) StreamChat(ctx context.Context, input []*schema.Message, onDelta deepseek.DeltaHandler) (*schema.Message, error) {
	if err := onDelta(deepseek.StreamDelta{Content: "部分"}); err != nil {
		return nil, err
	}
	s.cancel()
	return nil, ctx.Err()
}

func TestRun_CancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &fakeSession{tools: []mcp.Tool{{Name: "noop"}}}
	streamer := &cancelStreamer{cancel: cancel}
	e, _ := newEngineWith(t, streamer, session)

	rec := &eventRecorder{}
	err := e.Run(ctx, chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "hi"}},
		Options: chatapi.ChatOptions{
			Tools: []chatapi.ToolDescriptor{{ID: "t", URL: "http://tools.local/sse"}},
		},
	}, rec.sink)
	require.ErrorIs(t, err, context.Canceled)

	// 取消后没有任何后续事件，尤其没有异常标记。
	require.Equal(t, []chatapi.ProgressType{chatapi.ProgressLoading, chatapi.ProgressMiddle}, rec.types())
	require.Equal(t, "部分", rec.middleText())
	require.Equal(t, 1, session.closeCount)
}

func TestRun_AutoTitle(t *testing.T) {
	streamer := &fakeStreamer{rounds: []scriptedRound{{
		deltas: []deepseek.StreamDelta{{Content: "巴黎天气问答"}},
		reply:  &schema.Message{Role: schema.Assistant, Content: "巴黎天气问答"},
	}}}
	e, gotOptions := newEngineWith(t, streamer, nil)

	rec := &eventRecorder{}
	err := e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "weather in Paris"}},
		Options: chatapi.ChatOptions{
			Model:     "deepseek-reasoner",
			Thinking:  true,
			AutoTitle: true,
			Tools:     []chatapi.ToolDescriptor{{ID: "t", URL: "http://tools.local/sse"}},
		},
	}, rec.sink)
	require.NoError(t, err)

	// 命名运行退化为一次无工具、无思考的普通调用。
	require.Equal(t, "deepseek-chat", gotOptions.Model)
	require.False(t, gotOptions.Thinking)
	require.Empty(t, gotOptions.Tools)

	require.Len(t, streamer.inputs, 1)
	prompt := streamer.inputs[0][0]
	require.Equal(t, schema.User, prompt.Role)
	require.Contains(t, prompt.Content, "weather in Paris")
	require.Contains(t, prompt.Content, "名字是：")
	require.Equal(t, "巴黎天气问答", rec.middleText())
}

func TestRun_MaxRoundsExceeded(t *testing.T) {
	session := &fakeSession{tools: []mcp.Tool{{Name: "ping"}}}
	toolCallReply := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call_x",
			Function: schema.FunctionCall{Name: "ping", Arguments: `{}`},
		}},
	}
	streamer := &fakeStreamer{rounds: []scriptedRound{
		{reply: toolCallReply}, {reply: toolCallReply},
	}}

	e, err := New(Config{
		MaxRounds: 2,
		NewChatModel: func(options chatapi.ChatOptions, tools []deepseek.ToolDefinition) (ChatStreamer, error) {
			return streamer, nil
		},
		OpenSession: func(ctx context.Context, descriptor chatapi.ToolDescriptor) (ToolSession, error) {
			return session, nil
		},
	})
	require.NoError(t, err)

	err = e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "hi"}},
		Options: chatapi.ChatOptions{
			Tools: []chatapi.ToolDescriptor{{ID: "t", URL: "http://tools.local/sse"}},
		},
	}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rounds exceeded")
	require.Equal(t, 1, session.closeCount)
}

func TestRun_UnknownToolAborts(t *testing.T) {
	session := &fakeSession{tools: []mcp.Tool{{Name: "known"}}}
	streamer := &fakeStreamer{rounds: []scriptedRound{{
		reply: &schema.Message{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{{
				ID:       "call_x",
				Function: schema.FunctionCall{Name: "missing", Arguments: `{}`},
			}},
		},
	}}}
	e, _ := newEngineWith(t, streamer, session)

	err := e.Run(context.Background(), chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: "user", Content: "hi"}},
		Options: chatapi.ChatOptions{
			Tools: []chatapi.ToolDescriptor{{ID: "t", URL: "http://tools.local/sse"}},
		},
	}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
	require.Equal(t, 1, session.closeCount)
}

func TestRun_NoMessages(t *testing.T) {
	e, _ := newEngineWith(t, &fakeStreamer{}, nil)
	err := e.Run(context.Background(), chatapi.ChatRequest{}, nil)
	require.Error(t, err)
}
