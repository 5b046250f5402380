package mcptool

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/LubyRuffy/mcpchat/chatapi"
)

const (
	clientName      = "mcp-client"
	clientVersion   = "0.1.0"
	protocolVersion = "2025-06-18"

	// DefaultCallTimeout 是单次工具调用的默认超时。
	DefaultCallTimeout = 30 * time.Second
)

// ToolClient 抽象一条已建立的 MCP 连接，便于测试注入替身。
type ToolClient interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// DialFunc 建立到端点的传输层连接并返回可用的客户端。
type DialFunc func(ctx context.Context, endpoint string, headers map[string]string) (ToolClient, error)

type ConnectorConfig struct {
	// Registry 为空时每次 Open 都重新拉取工具清单。
	Registry *Registry
	// CallTimeout 限定单次工具调用时长，默认 30s。
	CallTimeout time.Duration
	// Dial 仅用于测试注入，默认走 SSE 传输。
	Dial DialFunc
}

// Connector 负责建立工具端点会话：同端点连接串行、失败后冷却、
// 工具清单走 Registry 缓存。
type Connector struct {
	config  ConnectorConfig
	limiter *connectLimiter
}

func NewConnector(config ConnectorConfig) *Connector {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if config.Dial == nil {
		config.Dial = dialSSE
	}
	return &Connector{config: config, limiter: newConnectLimiter()}
}

// dialSSE 建立 SSE 传输并启动，Initialize 之前必须先 Start。
func dialSSE(ctx context.Context, endpoint string, headers map[string]string) (ToolClient, error) {
	var opts []transport.ClientOption
	if len(headers) > 0 {
		opts = append(opts, transport.WithHeaders(headers))
	}
	mcpClient, err := client.NewSSEMCPClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}
	return mcpClient, nil
}

// Open 建立到工具端点的会话并取回工具清单。
// 端点仍在失败冷却期时返回 ErrConnectCooldown；凭证被拒返回 ErrUnauthorized。
func (c *Connector) Open(ctx context.Context, descriptor chatapi.ToolDescriptor) (*Session, error) {
	endpoint := strings.TrimSpace(descriptor.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("tool descriptor %q has no endpoint url", descriptor.ID)
	}

	st, err := c.limiter.acquire(endpoint)
	if err != nil {
		return nil, err
	}

	session, err := c.open(ctx, endpoint, descriptor)
	c.limiter.release(st, err != nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Connector) open(ctx context.Context, endpoint string, descriptor chatapi.ToolDescriptor) (*Session, error) {
	headers := make(map[string]string)
	if token := strings.TrimSpace(descriptor.AccessToken); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	mcpClient, err := c.config.Dial(ctx, endpoint, headers)
	if err != nil {
		return nil, normalizeConnectError(endpoint, err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, normalizeConnectError(endpoint, err)
	}

	tools, err := c.loadTools(ctx, endpoint, mcpClient)
	if err != nil {
		mcpClient.Close()
		return nil, normalizeConnectError(endpoint, err)
	}

	owned := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		owned[tool.Name] = struct{}{}
	}

	return &Session{
		endpoint:    endpoint,
		descriptor:  descriptor,
		client:      mcpClient,
		tools:       tools,
		owned:       owned,
		callTimeout: c.config.CallTimeout,
	}, nil
}

func (c *Connector) loadTools(ctx context.Context, endpoint string, mcpClient ToolClient) ([]mcp.Tool, error) {
	if c.config.Registry != nil {
		if tools, ok := c.config.Registry.Get(endpoint); ok {
			return tools, nil
		}
	}

	result, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	if c.config.Registry != nil {
		c.config.Registry.Put(endpoint, result.Tools)
	}
	return result.Tools, nil
}

// normalizeConnectError 把 401 类失败统一归并到 ErrUnauthorized。
func normalizeConnectError(endpoint string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") {
		return fmt.Errorf("%w: %s", ErrUnauthorized, endpoint)
	}
	return fmt.Errorf("failed to connect %s: %w", endpoint, err)
}

// Session 是一条已完成初始化的工具端点连接。
type Session struct {
	endpoint    string
	descriptor  chatapi.ToolDescriptor
	client      ToolClient
	tools       []mcp.Tool
	owned       map[string]struct{}
	callTimeout time.Duration
	closed      atomic.Bool
}

func (s *Session) Endpoint() string { return s.endpoint }

// Descriptor 返回建立会话时使用的工具描述。
func (s *Session) Descriptor() chatapi.ToolDescriptor { return s.descriptor }

// Tools 返回会话可用的工具清单副本。
func (s *Session) Tools() []mcp.Tool {
	tools := make([]mcp.Tool, len(s.tools))
	copy(tools, s.tools)
	return tools
}

// Owns 判断指定名字的工具是否由本会话提供。
func (s *Session) Owns(name string) bool {
	_, ok := s.owned[name]
	return ok
}

// CallTool 执行一次工具调用，单次调用受 callTimeout 约束。
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("session %s already closed", s.endpoint)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	result, err := s.client.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool %s call failed: %w", name, err)
	}
	return result, nil
}

// Close 关闭底层连接，重复调用只有第一次生效。
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}
