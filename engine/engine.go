package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/mark3labs/mcp-go/mcp"

	mcpchat "github.com/LubyRuffy/mcpchat"
	"github.com/LubyRuffy/mcpchat/chatapi"
	"github.com/LubyRuffy/mcpchat/deepseek"
)

// errorMarker 追加到已输出内容末尾的可见异常标记。
const errorMarker = "\n\n⚠️ =====异常结束====="

// DefaultMaxRounds 是单次运行允许的最大轮数，防止模型无限请求工具。
const DefaultMaxRounds = 8

// ToolSession 是一条已建立的工具端点会话（mcptool.Session 满足该接口）。
type ToolSession interface {
	Tools() []mcp.Tool
	Owns(name string) bool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// ChatStreamer 是一次流式模型调用的最小接口（deepseek.ChatModel 满足）。
type ChatStreamer interface {
	StreamChat(ctx context.Context, input []*schema.Message, onDelta deepseek.DeltaHandler) (*schema.Message, error)
}

// EventSink 按产生顺序接收进度事件；返回错误会中止整个运行。
type EventSink func(chatapi.Event) error

type Config struct {
	// NewChatModel 按本次运行的选项与工具清单构造模型调用器。
	NewChatModel func(options chatapi.ChatOptions, tools []deepseek.ToolDefinition) (ChatStreamer, error)
	// OpenSession 建立到工具端点的会话；未配置时启用工具会报错。
	OpenSession func(ctx context.Context, descriptor chatapi.ToolDescriptor) (ToolSession, error)
	// MaxRounds 限制单次运行的轮数，默认 DefaultMaxRounds。
	MaxRounds int
	// Now 仅用于测试注入时钟（提示词中的日期）。
	Now func() time.Time
}

// Engine 驱动多轮工具编排：模型调用、工具执行、进度推送。
type Engine struct {
	config Config
}

func New(config Config) (*Engine, error) {
	if config.NewChatModel == nil {
		return nil, errors.New("NewChatModel is required")
	}
	if config.MaxRounds <= 0 {
		config.MaxRounds = DefaultMaxRounds
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Engine{config: config}, nil
}

// Run 执行一次完整的编排运行直到最终轮、出错或取消。
// 流中（已有事件输出后）的非取消错误会在返回前向 sink 追加异常标记；
// 首个事件产生前的失败不输出任何事件，由调用方改走结构化错误应答。
// 取消不产生任何额外事件。运行期间打开的会话保证逐一关闭。
func (e *Engine) Run(ctx context.Context, request chatapi.ChatRequest, sink EventSink) error {
	if len(request.Messages) == 0 {
		return errors.New("messages are required")
	}
	if sink == nil {
		sink = func(chatapi.Event) error { return nil }
	}

	messages := make([]chatapi.Message, len(request.Messages))
	copy(messages, request.Messages)
	options := request.Options

	// 自动命名：重写首条消息为命名提示词，退化为一次无工具的普通运行。
	if options.AutoTitle {
		messages[0].Content = nameConversationPrompt(messages[0].Content)
		options.Model = mcpchat.DefaultModel
		options.Tools = nil
		options.SearchTool = nil
		options.WebSearch = false
		options.Thinking = false
		options.AutoTitle = false
	}
	options.Model = mcpchat.NormalizeModelID(options.Model)

	r := &run{
		engine:   e,
		sink:     sink,
		options:  options,
		messages: toSchemaMessages(messages),
	}
	defer r.closeSessions()

	err := r.execute(ctx)
	if err != nil && ctx.Err() == nil && r.wrote {
		// 尽力而为：输出流可能已不可写。
		_ = r.emit(chatapi.MiddleEvent(r.round, errorMarker))
	}
	return err
}

type openedSession struct {
	descriptor chatapi.ToolDescriptor
	session    ToolSession
	isSearch   bool
}

// run 承载一次编排运行的全部状态，随请求独占。
type run struct {
	engine            *Engine
	sink              EventSink
	options           chatapi.ChatOptions
	messages          []*schema.Message
	sessions          []openedSession
	round             int
	wrote             bool
	searchAnswerAdded bool
}

// emit 经 sink 输出一个事件并记下「流已开始」。
func (r *run) emit(event chatapi.Event) error {
	r.wrote = true
	return r.sink(event)
}

func (r *run) execute(ctx context.Context) error {
	if err := r.openSessions(ctx); err != nil {
		return err
	}

	manifest := r.buildManifest()
	if len(manifest) > 0 {
		r.prependSystem(toolChoiceInstruction(r.engine.config.Now()))
	}

	model, err := r.engine.config.NewChatModel(r.options, manifest)
	if err != nil {
		return err
	}

	for r.round = 0; r.round < r.engine.config.MaxRounds; r.round++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.emit(chatapi.LoadingEvent(r.round)); err != nil {
			return err
		}

		assistant, err := model.StreamChat(ctx, r.messages, r.deltaHandler())
		if err != nil {
			return err
		}
		r.messages = append(r.messages, assistant)

		// 无工具请求即为最终轮。
		if len(assistant.ToolCalls) == 0 {
			return nil
		}
		if err := r.executeToolCalls(ctx, assistant.ToolCalls); err != nil {
			return err
		}
	}
	return fmt.Errorf("tool call rounds exceeded %d", r.engine.config.MaxRounds)
}

// openSessions 打开本次运行启用的全部工具端点（搜索工具排在最前），
// 同一 URL 只打开一次。
func (r *run) openSessions(ctx context.Context) error {
	descriptors := r.activeDescriptors()
	if len(descriptors) == 0 {
		return nil
	}
	if r.engine.config.OpenSession == nil {
		return errors.New("tools are enabled but OpenSession is not configured")
	}

	opened := make(map[string]struct{})
	for i, descriptor := range descriptors {
		url := strings.TrimSpace(descriptor.URL)
		if url == "" {
			return fmt.Errorf("tool descriptor %q has no endpoint url", descriptor.ID)
		}
		if _, ok := opened[url]; ok {
			continue
		}

		session, err := r.engine.config.OpenSession(ctx, descriptor)
		if err != nil {
			return err
		}
		opened[url] = struct{}{}
		r.sessions = append(r.sessions, openedSession{
			descriptor: descriptor,
			session:    session,
			isSearch:   i == 0 && r.options.WebSearch && r.options.SearchTool != nil,
		})
	}
	return nil
}

// activeDescriptors 返回本轮启用的工具描述符，联网搜索工具被提到最前。
func (r *run) activeDescriptors() []chatapi.ToolDescriptor {
	var out []chatapi.ToolDescriptor
	if r.options.WebSearch && r.options.SearchTool != nil {
		search := *r.options.SearchTool
		if search.ID == "" {
			search.ID = chatapi.WebSearchToolID
		}
		out = append(out, search)
	}
	out = append(out, r.options.Tools...)
	return out
}

// buildManifest 把所有会话的子工具拍平成一份 function 工具清单。
func (r *run) buildManifest() []deepseek.ToolDefinition {
	var tools []mcp.Tool
	for _, s := range r.sessions {
		tools = append(tools, s.session.Tools()...)
	}
	return deepseek.ToolDefinitionsFromMCPTools(tools)
}

func (r *run) deltaHandler() deepseek.DeltaHandler {
	round := r.round
	return func(delta deepseek.StreamDelta) error {
		if delta.ReasoningContent != "" {
			if err := r.emit(chatapi.ThinkEvent(round, delta.ReasoningContent)); err != nil {
				return err
			}
		}
		if delta.ThinkSeconds != nil {
			if err := r.emit(chatapi.TimeEvent(round, *delta.ThinkSeconds)); err != nil {
				return err
			}
		}
		if delta.Content != "" {
			return r.emit(chatapi.MiddleEvent(round, delta.Content))
		}
		return nil
	}
}

// executeToolCalls 顺序执行一轮内的全部工具调用。
// 搜索工具的进度走 search 事件并对结果拆包；其余工具走 tools 事件，
// 按启动顺序累积快照。
func (r *run) executeToolCalls(ctx context.Context, calls []schema.ToolCall) error {
	tracker := newToolTracker()
	for _, call := range calls {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := call.Function.Name
		args, err := parseToolArguments(call.Function.Arguments)
		if err != nil {
			return fmt.Errorf("tool %s arguments invalid: %w", name, err)
		}
		owner := r.findOwner(name)
		if owner == nil {
			return fmt.Errorf("no tool session provides %s", name)
		}
		displayName := displayToolName(owner.descriptor, name)

		if owner.isSearch {
			if err := r.runSearchCall(ctx, owner, call.ID, name, displayName, args); err != nil {
				return err
			}
			continue
		}
		if err := r.runToolCall(ctx, owner, tracker, call.ID, name, displayName, args); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) runSearchCall(ctx context.Context, owner *openedSession, callID, name, displayName string, args map[string]any) error {
	if err := r.emit(chatapi.SearchEvent(r.round, chatapi.ToolActivity{Type: "start", ToolName: displayName})); err != nil {
		return err
	}

	result, err := owner.session.CallTool(ctx, name, args)
	if err != nil {
		return err
	}

	text := firstTextContent(result)
	items, parsed := unwrapSearchResult(text)
	var payload any = text
	if parsed {
		payload = items
	}
	if err := r.emit(chatapi.SearchEvent(r.round, chatapi.ToolActivity{
		Type:     "end",
		ToolName: displayName,
		Params:   args,
		Result:   payload,
	})); err != nil {
		return err
	}

	if !r.searchAnswerAdded {
		r.prependSystem(searchAnswerInstruction(r.engine.config.Now()))
		r.searchAnswerAdded = true
	}

	content := text
	if parsed {
		if formatted := formatWebpages(items); formatted != "" {
			content = formatted
		}
	}
	r.appendToolMessage(callID, content)
	return nil
}

func (r *run) runToolCall(ctx context.Context, owner *openedSession, tracker *toolTracker, callID, name, displayName string, args map[string]any) error {
	tracker.start(callID, displayName)
	if err := r.emit(chatapi.ToolsEvent(r.round, tracker.snapshot())); err != nil {
		return err
	}

	result, err := owner.session.CallTool(ctx, name, args)
	if err != nil {
		return err
	}

	tracker.finish(callID, args, result)
	if err := r.emit(chatapi.ToolsEvent(r.round, tracker.snapshot())); err != nil {
		return err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode tool %s result: %w", name, err)
	}
	r.appendToolMessage(callID, string(raw))
	return nil
}

// findOwner 按会话建立顺序找到提供该工具名的会话（搜索会话优先）。
func (r *run) findOwner(name string) *openedSession {
	for i := range r.sessions {
		if r.sessions[i].session.Owns(name) {
			return &r.sessions[i]
		}
	}
	return nil
}

func (r *run) prependSystem(content string) {
	r.messages = append([]*schema.Message{schema.SystemMessage(content)}, r.messages...)
}

func (r *run) appendToolMessage(callID, content string) {
	r.messages = append(r.messages, &schema.Message{
		Role:       schema.Tool,
		ToolCallID: callID,
		Content:    content,
	})
}

func (r *run) closeSessions() {
	for _, s := range r.sessions {
		_ = s.session.Close()
	}
	r.sessions = nil
}

func toSchemaMessages(messages []chatapi.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		role := schema.RoleType(msg.Role)
		if role == "" {
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: msg.Content})
	}
	return out
}

// displayToolName 生成进度事件里的展示名：描述符名(子工具名)。
func displayToolName(descriptor chatapi.ToolDescriptor, toolName string) string {
	if descriptor.Name == "" {
		return toolName
	}
	return descriptor.Name + "(" + toolName + ")"
}

func parseToolArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// firstTextContent 取结果包中第一段文本内容。
func firstTextContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, item := range result.Content {
		switch c := item.(type) {
		case mcp.TextContent:
			return c.Text
		case *mcp.TextContent:
			return c.Text
		}
	}
	return ""
}

// unwrapSearchResult 尝试把文本载荷解析成搜索结果列表。
func unwrapSearchResult(text string) ([]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	var items []any
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, false
	}
	return items, true
}
