package middleware

import (
	"github.com/wyfcoding/clusterd/response"

	"github.com/gin-gonic/gin"
)

// HTTPErrorHandler 处理器通过 c.Error 记录错误但未写出响应时，统一输出错误体。
func HTTPErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		response.Error(c, c.Errors.Last().Err)
	}
}
