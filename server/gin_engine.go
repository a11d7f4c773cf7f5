package server

import (
	"github.com/gin-gonic/gin"
)

// NewGinEngine 创建不带默认中间件的 gin 引擎，中间件顺序由调用方决定。
// trustedProxies 为空时不信任任何代理头，客户端地址取连接的远端地址。
func NewGinEngine(trustedProxies []string, middlewares ...gin.HandlerFunc) (*gin.Engine, error) {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if err := engine.SetTrustedProxies(trustedProxies); err != nil {
		return nil, err
	}
	engine.Use(middlewares...)
	return engine, nil
}
