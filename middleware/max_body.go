package middleware

import (
	"net/http"

	"github.com/wyfcoding/clusterd/response"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes 限制请求体大小，Content-Length 与实际读取流同时校验。未配置时不生效。
func MaxBodyBytes(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large", "content length exceeded")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
