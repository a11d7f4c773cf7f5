package middleware

import (
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/wyfcoding/clusterd/contextx"

	"github.com/gin-gonic/gin"
)

// ClientIP 取 X-Forwarded-For 的第一个地址，没有时使用连接的远端地址。
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := c.RemoteIP(); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// Route 返回匹配的路由模板，未匹配时使用原始路径。
func Route(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// ClientContext 把客户端 IP 写入 ctx，后续日志与限流共用。
func ClientContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(contextx.WithIP(c.Request.Context(), ClientIP(c)))
		c.Next()
	}
}

// Logger 访问日志：ip、方法、路由模板、状态码与毫秒耗时。超过 slow 的请求以 Warn 记录。
func Logger(logger *slog.Logger, slow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		cost := time.Since(start)
		ctx := c.Request.Context()
		attrs := []any{
			"ip", contextx.GetIP(ctx),
			"method", c.Request.Method,
			"route", Route(c),
			"status", c.Writer.Status(),
			"duration_ms", float64(cost.Microseconds()) / 1000,
			"request_id", contextx.GetRequestID(ctx),
		}
		if uid := contextx.GetUserID(ctx); uid != "" {
			attrs = append(attrs, "user_id", uid)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.Last().Error())
		}

		if slow > 0 && cost > slow {
			logger.WarnContext(ctx, "HTTP Request slow", attrs...)
			return
		}
		logger.InfoContext(ctx, "HTTP Request", attrs...)
	}
}
