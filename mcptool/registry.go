package mcptool

import (
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolCacheTTL 是单个端点工具清单的缓存时长。
const ToolCacheTTL = 5 * time.Minute

type registryEntry struct {
	tools    []mcp.Tool
	cachedAt time.Time
}

// Registry 按端点 URL 缓存工具清单，过期条目在读取时惰性清除。
type Registry struct {
	mu      sync.Mutex
	entries map[string]registryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
		ttl:     ToolCacheTTL,
		now:     time.Now,
	}
}

// Get 返回未过期的缓存清单；过期条目被删除并按未命中处理。
func (r *Registry) Get(endpoint string) ([]mcp.Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[endpoint]
	if !ok {
		return nil, false
	}
	if r.now().Sub(entry.cachedAt) >= r.ttl {
		delete(r.entries, endpoint)
		return nil, false
	}

	tools := make([]mcp.Tool, len(entry.tools))
	copy(tools, entry.tools)
	return tools, true
}

func (r *Registry) Put(endpoint string, tools []mcp.Tool) {
	cloned := make([]mcp.Tool, len(tools))
	copy(cloned, tools)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[endpoint] = registryEntry{tools: cloned, cachedAt: r.now()}
}
