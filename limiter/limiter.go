// Package limiter 提供按键计数的限流器：Redis 固定窗口计数和本地令牌桶。
package limiter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/clusterd/breaker"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 是按键隔离的本地令牌桶限流器，适用于单实例部署。
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	r       rate.Limit
	b       int
}

// NewLocalLimiter r 为每秒生成的令牌数，b 为桶容量。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*rate.Limiter), r: r, b: b}
}

// Allow 从 key 对应的桶中取一个令牌。
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.r, l.b)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()
	return bucket.Allow(), nil
}

// Counter 是固定窗口计数需要的 Redis 命令子集，*redis.Client 满足该接口。
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// FixedWindowLimiter 基于 Redis INCR 的固定窗口计数器。
// 第一次计数时设置过期时间，窗口内计数超过 limit 即拒绝。
type FixedWindowLimiter struct {
	client Counter
	limit  int64
	period time.Duration
}

// NewFixedWindowLimiter 创建固定窗口限流器。
func NewFixedWindowLimiter(client Counter, limit int, period time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{client: client, limit: int64(limit), period: period}
}

// Allow 实现 Limiter。
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.period).Err(); err != nil {
			return false, err
		}
	}
	return count <= l.limit, nil
}

// GuardedLimiter 用熔断器保护远端限流器。
// 远端出错或熔断时交给 fallback，fallback 为空则放行。
type GuardedLimiter struct {
	remote   Limiter
	fallback Limiter
	breaker  *breaker.Breaker
	logger   *slog.Logger
}

// NewGuardedLimiter 组合远端限流器、熔断器与降级限流器。
func NewGuardedLimiter(remote Limiter, b *breaker.Breaker, fallback Limiter, logger *slog.Logger) *GuardedLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedLimiter{remote: remote, fallback: fallback, breaker: b, logger: logger}
}

// Allow 实现 Limiter，从不返回错误。
func (g *GuardedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := breaker.ExecuteTyped(g.breaker, func() (bool, error) {
		return g.remote.Allow(ctx, key)
	})
	if err == nil {
		return allowed, nil
	}
	if !errors.Is(err, breaker.ErrServiceUnavailable) {
		g.logger.WarnContext(ctx, "remote rate limiter failed", "key", key, "error", err)
	}
	if g.fallback == nil {
		return true, nil
	}
	ok, _ := g.fallback.Allow(ctx, key)
	return ok, nil
}
