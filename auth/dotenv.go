package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// dotEnvProvider 从 .env 文件读取 API Key（不覆盖已有环境变量）。
type dotEnvProvider struct {
	// Path 为空时使用当前目录下的 .env。
	Path string
}

func (p *dotEnvProvider) APIKey(ctx context.Context) (string, error) {
	path := strings.TrimSpace(p.Path)
	if path == "" {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read dotenv file: %w", err)
	}
	key := strings.TrimSpace(values[EnvAPIKey])
	if key == "" {
		return "", fmt.Errorf("%s is not set in %s", EnvAPIKey, path)
	}
	return key, nil
}

// NewDotEnvProvider 创建指定路径的 dotenv Provider（path 为空时使用 ./.env）。
func NewDotEnvProvider(path string) Provider {
	return &dotEnvProvider{Path: path}
}
