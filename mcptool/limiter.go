package mcptool

import (
	"fmt"
	"sync"
	"time"
)

// ConnectCooldown 是端点连接失败后的最短重试间隔。
const ConnectCooldown = 2 * time.Second

type endpointState struct {
	mu          sync.Mutex
	lastFailure time.Time
}

// connectLimiter 对同一端点的连接做两层限制：
// 并发连接串行执行；连接失败后 ConnectCooldown 内的新尝试被直接拒绝。
// 不同端点互不影响。
type connectLimiter struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	cooldown  time.Duration
	now       func() time.Time
}

func newConnectLimiter() *connectLimiter {
	return &connectLimiter{
		endpoints: make(map[string]*endpointState),
		cooldown:  ConnectCooldown,
		now:       time.Now,
	}
}

func (l *connectLimiter) state(endpoint string) *endpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.endpoints[endpoint]
	if !ok {
		st = &endpointState{}
		l.endpoints[endpoint] = st
	}
	return st
}

// acquire 占住端点的连接权；若仍在冷却期则返回 ErrConnectCooldown。
// 成功时调用方必须以 release 归还。
func (l *connectLimiter) acquire(endpoint string) (*endpointState, error) {
	st := l.state(endpoint)
	st.mu.Lock()
	if !st.lastFailure.IsZero() {
		if wait := l.cooldown - l.now().Sub(st.lastFailure); wait > 0 {
			st.mu.Unlock()
			return nil, fmt.Errorf("%w: retry after %s", ErrConnectCooldown, wait.Round(time.Millisecond))
		}
	}
	return st, nil
}

// release 归还连接权；failed 为 true 时记录失败时刻以启动冷却。
func (l *connectLimiter) release(st *endpointState, failed bool) {
	if failed {
		st.lastFailure = l.now()
	} else {
		st.lastFailure = time.Time{}
	}
	st.mu.Unlock()
}
