package middleware

import (
	"log/slog"

	"github.com/wyfcoding/clusterd/contextx"
	"github.com/wyfcoding/clusterd/limiter"
	"github.com/wyfcoding/clusterd/metrics"
	"github.com/wyfcoding/clusterd/response"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/gin-gonic/gin"
)

// RateLimitRule 一条限流规则：Key 从请求计算计数键，返回空串时跳过。
type RateLimitRule struct {
	Scope   string
	Limiter limiter.Limiter
	Key     func(c *gin.Context) string
}

// GlobalKey {prefix}:{ip}
func GlobalKey(prefix string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return prefix + ":" + contextx.GetIP(c.Request.Context())
	}
}

// RouteKey {prefix}:{route}:{ip}
func RouteKey(prefix string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return prefix + ":" + Route(c) + ":" + contextx.GetIP(c.Request.Context())
	}
}

// CapKey {prefix}:route:{route}，同一路由的所有客户端共用一个计数。
func CapKey(prefix string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return prefix + ":route:" + Route(c)
	}
}

// RateLimit 依次检查每条规则，任一拒绝即返回 429。
// 限流组件出错时放行并记录日志。
func RateLimit(m *metrics.Metrics, rules ...RateLimitRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		for _, rule := range rules {
			if rule.Limiter == nil {
				continue
			}
			key := rule.Key(c)
			if key == "" {
				continue
			}
			allowed, err := rule.Limiter.Allow(ctx, key)
			if err != nil {
				slog.ErrorContext(ctx, "rate limiter internal error, fail-open applied", "key", key, "error", err)
				continue
			}
			if !allowed {
				if m != nil {
					m.RateLimitedTotal.WithLabelValues(rule.Scope).Inc()
				}
				slog.WarnContext(ctx, "request rejected by rate limiter", "scope", rule.Scope, "key", key)
				response.Error(c, xerrors.LimitExceeded("Too many requests"))
				return
			}
		}
		c.Next()
	}
}
