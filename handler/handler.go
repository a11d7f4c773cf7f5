// Package handler 注册 HTTP 路由，负责请求解码、参数校验与响应编码，业务逻辑在 service 包。
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/wyfcoding/clusterd/jwt"
	"github.com/wyfcoding/clusterd/middleware"
	"github.com/wyfcoding/clusterd/pagination"
	"github.com/wyfcoding/clusterd/response"
	"github.com/wyfcoding/clusterd/service"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

const refreshCookie = "refresh_token"

func init() {
	// 请求体中出现未知字段时拒绝。
	binding.EnableDecoderDisallowUnknownFields = true
}

// Options 路由级配置。
type Options struct {
	RefreshExpireDays int
	CookieSecure      bool
}

type Handler struct {
	users  *service.UserService
	chats  *service.ChatService
	kmeans *service.KmeansService
	tokens *jwt.Manager
	opts   Options
}

func New(users *service.UserService, chats *service.ChatService, kmeans *service.KmeansService, tokens *jwt.Manager, opts Options) *Handler {
	return &Handler{users: users, chats: chats, kmeans: kmeans, tokens: tokens, opts: opts}
}

// Register 挂载业务路由。guard 中的中间件（如限流）作用于所有业务路由。
func (h *Handler) Register(r gin.IRouter, guard ...gin.HandlerFunc) {
	auth := middleware.JWTAuth(h.tokens)

	users := r.Group("/users", guard...)
	users.POST("/signup", h.signup)
	users.POST("/login", h.login)
	users.POST("/refresh", h.refresh)
	users.GET("/", auth, h.getUser)
	users.PUT("/", auth, h.updateUserFull)
	users.PATCH("/", auth, h.updateUserPartial)
	users.DELETE("/", auth, h.deleteUser)

	chats := r.Group("/chats", guard...)
	chats.Use(auth)
	chats.POST("/", h.createChat)
	chats.GET("/", h.listChats)
	chats.GET("/:id", h.getChat)
	chats.PUT("/:id", h.updateChatFull)
	chats.PATCH("/:id", h.updateChatPartial)
	chats.DELETE("/:id", h.deleteChat)

	kmeans := r.Group("/kmeans", guard...)
	kmeans.Use(auth)
	kmeans.POST("/fit", h.fit)
	kmeans.GET("/", h.listKmeans)
	kmeans.GET("/:id", h.getCentroids)
	kmeans.GET("/:id/status", h.getKmeansStatus)
	kmeans.POST("/:id/predict", h.predict)
	kmeans.DELETE("/:id", h.deleteKmeans)
}

// bind 解码失败统一返回 422，并写出响应。
func bind(c *gin.Context, obj any, b ...binding.Binding) bool {
	var err error
	if len(b) > 0 {
		err = c.ShouldBindWith(obj, b[0])
	} else {
		err = c.ShouldBindJSON(obj)
	}
	if err == nil {
		return true
	}
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large", err.Error())
	case errors.Is(err, io.EOF):
		response.Error(c, xerrors.Unprocessable("Request body is required"))
	default:
		response.Error(c, xerrors.Unprocessable("Request validation failed").WithDetail("%s", err.Error()))
	}
	return false
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, xerrors.Unprocessable("Invalid id").WithDetail("%s", err.Error()))
		return uuid.Nil, false
	}
	return id, true
}

func page(c *gin.Context) (pagination.Page, bool) {
	var p pagination.Page
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, xerrors.Unprocessable("Invalid pagination").WithDetail("%s", err.Error()))
		return p, false
	}
	return p.Normalize(), true
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookie, token, h.opts.RefreshExpireDays*24*60*60, "/", "", h.opts.CookieSecure, true)
}

func (h *Handler) writeTokens(c *gin.Context, status int, pair service.TokenPair) {
	h.setRefreshCookie(c, pair.Refresh)
	response.SuccessWithStatus(c, status, tokenResponse{AccessToken: pair.Access, TokenType: "bearer"})
}

// formOrJSON 按 Content-Type 选择解码方式，兼容 OAuth2 风格的表单登录。
func formOrJSON(c *gin.Context) binding.Binding {
	return binding.Default(c.Request.Method, c.ContentType())
}
