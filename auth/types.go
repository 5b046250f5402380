package auth

import "context"

// Provider 用于从不同来源读取 DeepSeek API Key。
type Provider interface {
	APIKey(ctx context.Context) (apiKey string, err error)
}

type Source string

const (
	SourceEnv    Source = "env"
	SourceDotEnv Source = "dotenv"
	SourceAuto   Source = "auto"
)
