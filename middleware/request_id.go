// Package middleware 提供 gin 中间件：恢复、请求 ID、访问日志、指标、超时、限流与认证。
package middleware

import (
	"github.com/wyfcoding/clusterd/contextx"
	"github.com/wyfcoding/clusterd/idgen"

	"github.com/gin-gonic/gin"
)

const HeaderXRequestID = "X-Request-ID"

// RequestID 透传或生成请求 ID，并写入 ctx 和响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = idgen.GenIDString()
		}
		c.Request = c.Request.WithContext(contextx.WithRequestID(c.Request.Context(), requestID))
		c.Header(HeaderXRequestID, requestID)
		c.Next()
	}
}
