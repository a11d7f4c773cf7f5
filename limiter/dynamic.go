package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// DynamicLimiter 支持热更新的限流器封装，未设置时放行。
type DynamicLimiter struct {
	value atomic.Pointer[Limiter]
}

// NewDynamicLimiter 创建动态限流器。
func NewDynamicLimiter(initial Limiter) *DynamicLimiter {
	d := &DynamicLimiter{}
	d.Update(initial)
	return d
}

// Update 替换当前限流器实例，nil 表示关闭限流。
func (d *DynamicLimiter) Update(l Limiter) {
	if d == nil {
		return
	}
	if l == nil {
		d.value.Store(nil)
		return
	}
	d.value.Store(&l)
}

// UpdateLocal 更新为本地令牌桶限流器。
func (d *DynamicLimiter) UpdateLocal(rateLimit, burst int) {
	if rateLimit <= 0 {
		d.Update(nil)
		return
	}
	if burst <= 0 {
		burst = rateLimit
	}
	d.Update(NewLocalLimiter(rate.Limit(rateLimit), burst))
}

// Allow 实现 Limiter 接口。
func (d *DynamicLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if d == nil {
		return true, nil
	}
	l := d.value.Load()
	if l == nil {
		return true, nil
	}
	return (*l).Allow(ctx, key)
}
