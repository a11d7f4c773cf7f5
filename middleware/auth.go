package middleware

import (
	"strings"

	"github.com/wyfcoding/clusterd/contextx"
	"github.com/wyfcoding/clusterd/jwt"
	"github.com/wyfcoding/clusterd/response"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ctxUserID = "user_id"

// JWTAuth 校验 Bearer 访问令牌，把用户 ID 写入 gin 上下文与 ctx。
func JWTAuth(m *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			response.Error(c, xerrors.Unauthenticated("Could not validate credentials").WithDetail("missing bearer token"))
			return
		}

		userID, err := m.Parse(token, jwt.Access)
		if err != nil {
			response.Error(c, xerrors.Unauthenticated("Could not validate credentials").WithDetail("%s", err.Error()))
			return
		}

		c.Set(ctxUserID, userID)
		c.Request = c.Request.WithContext(contextx.WithUserID(c.Request.Context(), userID.String()))
		c.Next()
	}
}

// GetUserID 读取 JWTAuth 写入的用户 ID。
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// MustGetUserID 仅用于挂在 JWTAuth 之后的处理器。
func MustGetUserID(c *gin.Context) uuid.UUID {
	id, ok := GetUserID(c)
	if !ok {
		panic("user_id not found in context")
	}
	return id
}
