package chathttp

import (
	"context"
	"net/http"
	"time"
)

// AuthProvider 提供访问 DeepSeek API 所需的 Key。
type AuthProvider func(ctx context.Context) (apiKey string, err error)

type Config struct {
	// BasePath 仅用于 Gin 注册路由时拼接路径，默认 "/api"。
	BasePath string
	// APIURL DeepSeek chat completions 端点地址，默认 mcpchat.DefaultAPIURL。
	APIURL string
	// HTTPClient 可选，nil 时内部使用 &http.Client{}。
	HTTPClient *http.Client
	// AuthProvider 必填：通过回调注入 API Key。
	AuthProvider AuthProvider
	// ConnectTimeout 上游建连超时，默认 deepseek.DefaultConnectTimeout。
	ConnectTimeout time.Duration
	// MaxRounds 单次编排运行的最大轮数，默认 engine.DefaultMaxRounds。
	MaxRounds int
}
