package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wyfcoding/clusterd/response"

	"github.com/gin-gonic/gin"
)

// Timeout 为请求 ctx 设置超时，处理器未写出响应时返回 504。
func Timeout(duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if duration <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), duration)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			response.ErrorWithStatus(c, http.StatusGatewayTimeout, "Request Timeout", "")
		}
	}
}
