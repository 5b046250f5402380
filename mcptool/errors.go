package mcptool

import "errors"

var (
	// ErrUnauthorized 表示端点拒绝了当前凭证（401 类失败）。
	ErrUnauthorized = errors.New("mcp endpoint unauthorized")
	// ErrConnectCooldown 表示端点上一次连接失败后仍处于冷却期。
	ErrConnectCooldown = errors.New("mcp endpoint in connect cooldown")
)
