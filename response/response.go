// Package response 提供统一的 JSON 响应封装 {code, msg, data}，并把 xerrors 映射为 HTTP 状态码。
package response

import (
	"net/http"

	"github.com/wyfcoding/clusterd/contextx"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/gin-gonic/gin"
)

// Success 发送一个标准的成功响应（HTTP 200，业务码 0）。
func Success(c *gin.Context, data any) {
	SuccessWithStatus(c, http.StatusOK, data)
}

// SuccessWithStatus 发送指定 HTTP 状态码的成功响应。
func SuccessWithStatus(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code": 0,
		"msg":  "success",
		"data": data,
	})
}

// SuccessWithPagination 发送包含 skip/limit 的列表响应。
func SuccessWithPagination(c *gin.Context, data any, skip, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"code":  0,
		"msg":   "success",
		"data":  data,
		"skip":  skip,
		"limit": limit,
	})
}

// NoContent 发送 204。
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 根据错误链中的 *xerrors.Error 选择状态码，无法识别时返回 500。
// 5xx 错误不向客户端暴露内部详情。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	e, ok := xerrors.FromError(err)
	if !ok {
		e = xerrors.WrapInternal(err, "internal server error")
	}

	status := e.HTTPStatus()
	body := gin.H{
		"code":       e.Code,
		"msg":        e.Message,
		"request_id": contextx.GetRequestID(c.Request.Context()),
	}
	if status < http.StatusInternalServerError {
		if e.Detail != "" {
			body["detail"] = e.Detail
		}
		if len(e.Context) > 0 {
			body["context"] = e.Context
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":   status,
		"msg":    msg,
		"detail": detail,
	})
}
