package chathttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/LubyRuffy/mcpchat/chatapi"
	"github.com/LubyRuffy/mcpchat/deepseek"
	"github.com/LubyRuffy/mcpchat/mcptool"
)

func decodeJSONBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeAPIError 写出结构化错误包，机器可读错误码同时放进 X-Error-Code。
func writeAPIError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(chatapi.NewErrorEnvelope(code, message))
}

// classifyError 把运行错误映射到 HTTP 状态与错误码。
func classifyError(err error) (int, string) {
	var he *httpError
	if errors.As(err, &he) {
		return he.Status, he.Code
	}
	switch {
	case errors.Is(err, mcptool.ErrUnauthorized):
		return http.StatusUnauthorized, "TOOL_UNAUTHORIZED"
	case errors.Is(err, mcptool.ErrConnectCooldown):
		return http.StatusTooManyRequests, "TOOL_CONNECT_COOLDOWN"
	case errors.Is(err, deepseek.ErrConnectTimeout):
		return http.StatusGatewayTimeout, "TIMEOUT_ERROR"
	default:
		return http.StatusInternalServerError, "API_ERROR"
	}
}

// httpError 携带应答状态与错误码在各层之间传递。
type httpError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *httpError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *httpError) Unwrap() error { return e.Err }

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		return "/"
	}
	return basePath
}

func joinPath(basePath, suffix string) string {
	basePath = normalizeBasePath(basePath)
	if suffix == "" {
		return basePath
	}
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	// path.Join 会清理重复的 /，并保证结果以 / 开头
	return path.Join(basePath, suffix)
}
