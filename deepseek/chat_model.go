package deepseek

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrConnectTimeout 表示在限定时间内没有与上游建立连接（独立于取消）。
var ErrConnectTimeout = errors.New("deepseek connect timeout")

// DefaultConnectTimeout 是未配置时的连接超时。
const DefaultConnectTimeout = 30 * time.Second

type ChatModelConfig struct {
	Model      string
	APIURL     string
	APIKey     string
	HTTPClient *http.Client
	// Temperature/MaxTokens 透传到请求体。
	Temperature *float64
	MaxTokens   int
	// ThinkingEnabled 为 true 时请求体携带 thinking.type=enabled。
	ThinkingEnabled bool
	// ConnectTimeout 限定「建立连接」的等待时间，默认 30s；
	// 连接建立后的流式读取不受该超时约束。
	ConnectTimeout time.Duration
	// Now 仅用于测试注入时钟。
	Now func() time.Time
}

// StreamDelta 是一帧 delta 解出的语义单元。
// 三个字段可同时非空，消费方不得假设互斥。
type StreamDelta struct {
	// ReasoningContent 深度思考文本片段。
	ReasoningContent string
	// Content 正式回答文本片段。
	Content string
	// ThinkSeconds 在首个回答片段到达时携带思考耗时（四舍五入秒），
	// 每次调用至多一次，且仅当此前出现过思考片段。
	ThinkSeconds *int
}

// DeltaHandler 按到达顺序接收语义单元；返回错误会中止流式读取。
type DeltaHandler func(StreamDelta) error

// ChatModel 是基于 DeepSeek chat completions SSE 接口的 ToolCallingChatModel 实现。
type ChatModel struct {
	config        ChatModelConfig
	tools         []*schema.ToolInfo
	functionTools []ToolDefinition
}

func NewChatModel(config ChatModelConfig) (*ChatModel, error) {
	if strings.TrimSpace(config.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if strings.TrimSpace(config.APIURL) == "" {
		return nil, fmt.Errorf("api url is required")
	}
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &ChatModel{config: config}, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	return m.StreamChat(ctx, input, nil)
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](64)
	go func() {
		defer sw.Close()
		_, err := m.StreamChat(ctx, input, func(delta StreamDelta) error {
			if delta.Content == "" {
				return nil
			}
			sw.Send(&schema.Message{Role: schema.Assistant, Content: delta.Content}, nil)
			return nil
		})
		if err != nil {
			sw.Send(nil, err)
		}
	}()
	return sr, nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (einoModel.ToolCallingChatModel, error) {
	cloned := *m
	cloned.tools = tools
	return &cloned, nil
}

// WithFunctionTools 设置本次调用随请求体下发的 function 工具清单。
func (m *ChatModel) WithFunctionTools(tools []ToolDefinition) *ChatModel {
	cloned := *m
	cloned.functionTools = tools
	return &cloned
}

// StreamChat 发起一次流式补全，按到达顺序回调语义单元，
// 返回组装完成的 assistant 消息（含按 index 重组的 tool_calls）。
func (m *ChatModel) StreamChat(ctx context.Context, input []*schema.Message, onDelta DeltaHandler) (*schema.Message, error) {
	payload, err := m.buildRequestPayload(input)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deepseek request: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.config.APIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build deepseek request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.config.APIKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// 连接超时只覆盖到响应头返回为止，之后由调用方的 ctx 控制。
	var timedOut atomic.Bool
	timer := time.AfterFunc(m.config.ConnectTimeout, func() {
		timedOut.Store(true)
		cancel()
	})

	resp, err := m.config.HTTPClient.Do(req)
	timer.Stop()
	if err != nil {
		if timedOut.Load() && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no response within %s", ErrConnectTimeout, m.config.ConnectTimeout)
		}
		return nil, fmt.Errorf("deepseek request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("deepseek request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return m.readChatSSE(ctx, resp.Body, onDelta)
}

type chatMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []toolCallPayload `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type toolCallPayload struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type thinkingPayload struct {
	Type string `json:"type"`
}

type requestPayload struct {
	Model       string           `json:"model"`
	Messages    []chatMessage    `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Thinking    *thinkingPayload `json:"thinking,omitempty"`
}

func (m *ChatModel) buildRequestPayload(input []*schema.Message) (*requestPayload, error) {
	messages := make([]chatMessage, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.Tool:
			if strings.TrimSpace(msg.ToolCallID) == "" || msg.Content == "" {
				continue
			}
			messages = append(messages, chatMessage{
				Role:       "tool",
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case schema.Assistant:
			item := chatMessage{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				if strings.TrimSpace(tc.ID) == "" {
					continue
				}
				call := toolCallPayload{ID: tc.ID, Type: "function"}
				if strings.TrimSpace(tc.Type) != "" {
					call.Type = tc.Type
				}
				call.Function.Name = strings.TrimSpace(tc.Function.Name)
				call.Function.Arguments = tc.Function.Arguments
				item.ToolCalls = append(item.ToolCalls, call)
			}
			if item.Content == "" && len(item.ToolCalls) == 0 {
				continue
			}
			messages = append(messages, item)
		default:
			if msg.Content == "" {
				continue
			}
			messages = append(messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
		}
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}

	var thinking *thinkingPayload
	if m.config.ThinkingEnabled {
		thinking = &thinkingPayload{Type: "enabled"}
	}

	return &requestPayload{
		Model:       m.config.Model,
		Messages:    messages,
		Temperature: m.config.Temperature,
		MaxTokens:   m.config.MaxTokens,
		Stream:      true,
		Tools:       m.functionTools,
		Thinking:    thinking,
	}, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Role             string          `json:"role"`
			Content          string          `json:"content"`
			ReasoningContent string          `json:"reasoning_content"`
			ToolCalls        []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (m *ChatModel) readChatSSE(ctx context.Context, body io.Reader, onDelta DeltaHandler) (*schema.Message, error) {
	reader := bufio.NewReader(body)
	state := newStreamState(m.config.Now, onDelta)

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return state.finalize(), nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("deepseek stream read failed: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return state.finalize(), nil
		}
		if err := state.handleFrame(data); err != nil {
			return nil, err
		}
	}
}

// streamState 在流式读取过程中累积一条 assistant 消息。
type streamState struct {
	now     func() time.Time
	onDelta DeltaHandler

	content   strings.Builder
	reasoning strings.Builder
	calls     *toolCallAssembler

	firstReasoningAt time.Time
	thinkReported    bool
}

func newStreamState(now func() time.Time, onDelta DeltaHandler) *streamState {
	return &streamState{
		now:     now,
		onDelta: onDelta,
		calls:   newToolCallAssembler(),
	}
}

func (s *streamState) handleFrame(payload string) error {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// 上游偶尔混入非 JSON 的 keep-alive 噪声，丢弃并记录即可。
		log.Printf("[mcpchat] drop malformed stream frame: %v", err)
		return nil
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	delta := chunk.Choices[0].Delta

	var out StreamDelta
	if delta.ReasoningContent != "" {
		if s.firstReasoningAt.IsZero() {
			s.firstReasoningAt = s.now()
		}
		s.reasoning.WriteString(delta.ReasoningContent)
		out.ReasoningContent = delta.ReasoningContent
	}
	if delta.Content != "" {
		if !s.thinkReported && !s.firstReasoningAt.IsZero() {
			seconds := int(math.Round(s.now().Sub(s.firstReasoningAt).Seconds()))
			out.ThinkSeconds = &seconds
			s.thinkReported = true
		}
		s.content.WriteString(delta.Content)
		out.Content = delta.Content
	}
	for _, call := range delta.ToolCalls {
		s.calls.apply(call)
	}

	if out.ReasoningContent == "" && out.Content == "" && out.ThinkSeconds == nil {
		return nil
	}
	if s.onDelta == nil {
		return nil
	}
	return s.onDelta(out)
}

func (s *streamState) finalize() *schema.Message {
	return &schema.Message{
		Role:             schema.Assistant,
		Content:          s.content.String(),
		ReasoningContent: s.reasoning.String(),
		ToolCalls:        s.calls.finalize(),
	}
}
