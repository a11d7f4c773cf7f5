package limiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/clusterd/breaker"
	"github.com/wyfcoding/clusterd/config"
)

// memCounter 模拟 Redis 的 INCR/EXPIRE。
type memCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (m *memCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memCounter) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func TestFixedWindowLimiter(t *testing.T) {
	ctx := context.Background()
	c := newMemCounter()
	l := NewFixedWindowLimiter(c, 2, time.Minute)

	for i, want := range []bool{true, true, false, false} {
		ok, err := l.Allow(ctx, "rl:global:1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "request %d", i)
	}
	assert.Equal(t, time.Minute, c.expires["rl:global:1.2.3.4"])

	ok, err := l.Allow(ctx, "rl:global:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardedLimiterFailsOpen(t *testing.T) {
	c := newMemCounter()
	c.err = errors.New("connection refused")
	b := breaker.NewBreaker(breaker.Settings{Name: "redis"}, nil)

	g := NewGuardedLimiter(NewFixedWindowLimiter(c, 1, time.Minute), b, nil, nil)
	for range 3 {
		ok, err := g.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestGuardedLimiterFallsBackWhenOpen(t *testing.T) {
	c := newMemCounter()
	c.err = errors.New("timeout")
	b := breaker.NewBreaker(breaker.Settings{
		Name:   "redis",
		Config: config.CircuitBreakerConfig{Enabled: true, MinRequests: 1, FailureRatio: 0.5, Timeout: time.Minute},
	}, nil)

	g := NewGuardedLimiter(NewFixedWindowLimiter(c, 10, time.Minute), b, NewLocalLimiter(0, 1), nil)
	ctx := context.Background()
	ok, _ := g.Allow(ctx, "ip")
	assert.True(t, ok)
	ok, _ = g.Allow(ctx, "ip")
	assert.False(t, ok)
}

func TestDynamicLimiter(t *testing.T) {
	ctx := context.Background()
	d := NewDynamicLimiter(nil)
	ok, err := d.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	d.UpdateLocal(1, 1)
	ok, _ = d.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = d.Allow(ctx, "a")
	assert.False(t, ok)
	ok, _ = d.Allow(ctx, "b")
	assert.True(t, ok)

	d.UpdateLocal(0, 0)
	ok, _ = d.Allow(ctx, "a")
	assert.True(t, ok)
}
