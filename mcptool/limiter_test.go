package mcptool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectLimiter_CooldownAfterFailure(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newConnectLimiter()
	l.now = func() time.Time { return now }

	st, err := l.acquire("http://a.local/sse")
	require.NoError(t, err)
	l.release(st, true)

	// 冷却期内直接拒绝。
	now = now.Add(time.Second)
	_, err = l.acquire("http://a.local/sse")
	require.ErrorIs(t, err, ErrConnectCooldown)

	// 冷却期过后放行。
	now = now.Add(1500 * time.Millisecond)
	st, err = l.acquire("http://a.local/sse")
	require.NoError(t, err)
	l.release(st, false)
}

func TestConnectLimiter_SuccessClearsCooldown(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newConnectLimiter()
	l.now = func() time.Time { return now }

	st, err := l.acquire("http://a.local/sse")
	require.NoError(t, err)
	l.release(st, true)

	now = now.Add(3 * time.Second)
	st, err = l.acquire("http://a.local/sse")
	require.NoError(t, err)
	l.release(st, false)

	// 上次成功，无需再等待。
	st, err = l.acquire("http://a.local/sse")
	require.NoError(t, err)
	l.release(st, false)
}

func TestConnectLimiter_EndpointsIndependent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newConnectLimiter()
	l.now = func() time.Time { return now }

	st, err := l.acquire("http://a.local/sse")
	require.NoError(t, err)
	l.release(st, true)

	// a 冷却期不影响 b。
	st, err = l.acquire("http://b.local/sse")
	require.NoError(t, err)
	l.release(st, false)
}
