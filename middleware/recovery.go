package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/wyfcoding/clusterd/contextx"
	"github.com/wyfcoding/clusterd/response"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/gin-gonic/gin"
)

// Recovery 捕获处理器 panic，记录堆栈后返回统一的 500 响应。
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			logger.ErrorContext(ctx, "panic recovered",
				"panic", rec,
				"method", c.Request.Method,
				"route", Route(c),
				"request_id", contextx.GetRequestID(ctx),
				"stack", string(debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, xerrors.Internal("Internal Server Error", fmt.Errorf("panic: %v", rec)))
		}()
		c.Next()
	}
}
