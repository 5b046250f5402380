package auth

import (
	"context"
	"fmt"
	"strings"
)

// NewProvider 根据来源创建 Provider。
// source 允许：env/dotenv/auto；空值按 env 处理。
func NewProvider(source string) (Provider, error) {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		s = string(SourceEnv)
	}
	switch Source(s) {
	case SourceEnv:
		return &envProvider{}, nil
	case SourceDotEnv:
		return &dotEnvProvider{}, nil
	case SourceAuto:
		return &autoProvider{providers: []Provider{&envProvider{}, &dotEnvProvider{}}}, nil
	default:
		return nil, fmt.Errorf("unsupported auth source: %s", source)
	}
}

type autoProvider struct {
	providers []Provider
}

func (p *autoProvider) APIKey(ctx context.Context) (string, error) {
	var lastErr error
	for _, provider := range p.providers {
		key, err := provider.APIKey(ctx)
		if err == nil && strings.TrimSpace(key) != "" {
			return key, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("no api key available")
}
