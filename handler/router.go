package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/wyfcoding/clusterd/config"
	"github.com/wyfcoding/clusterd/health"
	"github.com/wyfcoding/clusterd/metrics"
	"github.com/wyfcoding/clusterd/middleware"
	"github.com/wyfcoding/clusterd/server"

	"github.com/gin-gonic/gin"
)

// RouterDeps 组装引擎所需的依赖。Metrics、Health 为 nil 时不挂载对应端点。
type RouterDeps struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Health  *health.Registry
	// RateLimit 依次检查的限流规则。
	RateLimit []middleware.RateLimitRule
}

// NewRouter 按固定顺序装配中间件并注册全部路由。
func NewRouter(h *Handler, deps RouterDeps) (*gin.Engine, error) {
	cfg := deps.Config
	mws := []gin.HandlerFunc{
		middleware.Recovery(deps.Logger),
		middleware.RequestID(),
		middleware.ClientContext(),
	}
	if cfg.Tracing.Enabled {
		mws = append(mws, middleware.Tracing(cfg.Server.Name))
	}
	mws = append(mws, middleware.Logger(deps.Logger, cfg.Log.SlowThreshold))
	if deps.Metrics != nil {
		mws = append(mws, middleware.HTTPMetrics(deps.Metrics, cfg.Metrics.Path, "/healthz"))
	}
	mws = append(mws,
		middleware.MaxBodyBytes(cfg.Server.HTTP.MaxBodyBytes),
		middleware.Timeout(cfg.Server.HTTP.Timeout),
		middleware.HTTPErrorHandler(),
	)

	engine, err := server.NewGinEngine(cfg.Server.HTTP.TrustedProxies, mws...)
	if err != nil {
		return nil, err
	}
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "msg": "Not Found"})
	})

	if deps.Health != nil {
		engine.GET("/healthz", deps.Health.Handler())
	}
	if deps.Metrics != nil && cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics.Handler()))
	}
	engine.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": cfg.Server.Name, "version": cfg.Version, "time": time.Now().UTC()})
	})

	var guard []gin.HandlerFunc
	if len(deps.RateLimit) > 0 {
		guard = append(guard, middleware.RateLimit(deps.Metrics, deps.RateLimit...))
	}
	h.Register(engine, guard...)
	return engine, nil
}
