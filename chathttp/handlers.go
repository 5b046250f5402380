package chathttp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	mcpchat "github.com/LubyRuffy/mcpchat"
	"github.com/LubyRuffy/mcpchat/chatapi"
	"github.com/LubyRuffy/mcpchat/deepseek"
	"github.com/LubyRuffy/mcpchat/engine"
	"github.com/LubyRuffy/mcpchat/mcptool"
)

// Handlers 构造 chat/tools/models 三个处理器。
func Handlers(cfg Config) (chatHandler, toolsHandler, modelsHandler http.HandlerFunc, err error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	api := &apiHandler{resolved: resolved}
	return api.handleChat, api.handleTools, api.handleModels, nil
}

type resolvedConfig struct {
	BasePath       string
	APIURL         string
	HTTPClient     *http.Client
	AuthProvider   AuthProvider
	ConnectTimeout time.Duration
	MaxRounds      int
	Registry       *mcptool.Registry
	Connector      *mcptool.Connector
}

func resolveConfig(cfg Config) (resolvedConfig, error) {
	if cfg.AuthProvider == nil {
		return resolvedConfig{}, fmt.Errorf("AuthProvider is required")
	}

	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		apiURL = mcpchat.DefaultAPIURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	registry := mcptool.NewRegistry()
	return resolvedConfig{
		BasePath:       normalizeBasePath(cfg.BasePath),
		APIURL:         apiURL,
		HTTPClient:     client,
		AuthProvider:   cfg.AuthProvider,
		ConnectTimeout: cfg.ConnectTimeout,
		MaxRounds:      cfg.MaxRounds,
		Registry:       registry,
		Connector:      mcptool.NewConnector(mcptool.ConnectorConfig{Registry: registry}),
	}, nil
}

type apiHandler struct {
	resolved resolvedConfig
}

// handleChat 接收 {messages, options}，以 text/event-stream 推送进度事件。
// 首个事件产生前的失败（校验、取 key、工具会话建立等）返回结构化错误包；
// 流中失败由引擎追加异常标记后正常收流。
func (h *apiHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is supported")
		return
	}

	var request chatapi.ChatRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if len(request.Messages) == 0 {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "messages are required")
		return
	}
	if !mcpchat.IsSupportedModelID(request.Options.Model) {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("unsupported model: %s", request.Options.Model))
		return
	}

	apiKey, err := h.resolved.AuthProvider(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusServiceUnavailable, "AUTH_ERROR", "api key not available")
		return
	}

	eng, err := h.newEngine(apiKey)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "API_ERROR", err.Error())
		return
	}

	// 头部先按流式设置；若首个事件前失败会被错误应答覆盖。
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	encoder := chatapi.NewStreamEncoder(w)
	err = eng.Run(r.Context(), request, func(event chatapi.Event) error {
		return encoder.Encode(event)
	})
	if err != nil {
		if r.Context().Err() != nil {
			// 调用方已断开，收尾即可。
			return
		}
		if !encoder.Wrote() {
			status, code := classifyError(err)
			writeAPIError(w, status, code, err.Error())
		}
	}
}

// newEngine 按本次请求的凭证构造编排引擎。
func (h *apiHandler) newEngine(apiKey string) (*engine.Engine, error) {
	resolved := h.resolved
	return engine.New(engine.Config{
		MaxRounds: resolved.MaxRounds,
		NewChatModel: func(options chatapi.ChatOptions, tools []deepseek.ToolDefinition) (engine.ChatStreamer, error) {
			m, err := deepseek.NewChatModel(deepseek.ChatModelConfig{
				Model:           options.Model,
				APIURL:          resolved.APIURL,
				APIKey:          apiKey,
				HTTPClient:      resolved.HTTPClient,
				Temperature: options.Temperature,
				MaxTokens:   options.MaxTokens,
				// 深度思考模型无需显式开关，始终带思考输出。
				ThinkingEnabled: options.Thinking || mcpchat.IsThinkingModel(options.Model),
				ConnectTimeout:  resolved.ConnectTimeout,
			})
			if err != nil {
				return nil, &httpError{
					Status:  http.StatusInternalServerError,
					Code:    "API_ERROR",
					Message: "failed to create chat model",
					Err:     err,
				}
			}
			if len(tools) > 0 {
				m = m.WithFunctionTools(tools)
			}
			return m, nil
		},
		OpenSession: func(ctx context.Context, descriptor chatapi.ToolDescriptor) (engine.ToolSession, error) {
			session, err := resolved.Connector.Open(ctx, descriptor)
			if err != nil {
				return nil, err
			}
			return session, nil
		},
	})
}

// handleModels 返回内置模型列表，供前端模型选择。
func (h *apiHandler) handleModels(w http.ResponseWriter, r *http.Request) {
	models := mcpchat.PresetModels()
	type modelInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, modelInfo{ID: m.ID, Name: m.Name})
	}
	writeJSON(w, map[string]any{"models": out})
}

// handleTools 列出一个工具端点的清单：单轮、不经过 LLM。
// GET 用查询参数传描述符，POST 用 JSON 体。
func (h *apiHandler) handleTools(w http.ResponseWriter, r *http.Request) {
	var descriptor chatapi.ToolDescriptor
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		descriptor = chatapi.ToolDescriptor{
			ID:          q.Get("id"),
			Name:        q.Get("name"),
			URL:         q.Get("url"),
			AccessToken: q.Get("accessToken"),
		}
	case http.MethodPost:
		if err := decodeJSONBody(r, &descriptor); err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET/POST are supported")
		return
	}

	if strings.TrimSpace(descriptor.URL) == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "tool url is required")
		return
	}

	session, err := h.resolved.Connector.Open(r.Context(), descriptor)
	if err != nil {
		status, code := classifyError(err)
		writeAPIError(w, status, code, err.Error())
		return
	}
	defer session.Close()

	tools := session.Tools()
	infos := make([]chatapi.ToolInfo, 0, len(tools))
	for _, tool := range tools {
		infos = append(infos, chatapi.ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	writeJSON(w, chatapi.ToolListResponse{Tools: infos})
}
