package main

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/clusterd/app"
	"github.com/wyfcoding/clusterd/breaker"
	"github.com/wyfcoding/clusterd/cache"
	"github.com/wyfcoding/clusterd/config"
	"github.com/wyfcoding/clusterd/database"
	"github.com/wyfcoding/clusterd/handler"
	"github.com/wyfcoding/clusterd/health"
	"github.com/wyfcoding/clusterd/jwt"
	"github.com/wyfcoding/clusterd/limiter"
	"github.com/wyfcoding/clusterd/logging"
	"github.com/wyfcoding/clusterd/metrics"
	"github.com/wyfcoding/clusterd/middleware"
	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/redis"
	"github.com/wyfcoding/clusterd/repository"
	"github.com/wyfcoding/clusterd/repository/memrepo"
	"github.com/wyfcoding/clusterd/service"
	"github.com/wyfcoding/clusterd/worker"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type components struct {
	handler   *handler.Handler
	health    *health.Registry
	rateLimit []middleware.RateLimitRule
	hooks     []app.Hook
}

type repositories struct {
	users  repository.UserRepository
	chats  repository.ChatRepository
	kmeans repository.KmeansRepository
}

// wire 按依赖顺序创建组件。返回的 cleanup 逆序释放已创建的资源。
func wire(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*components, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*components, func(), error) {
		cleanup()
		return nil, nil, err
	}

	checks := health.NewRegistry(0)

	repos, closeDB, err := openRepositories(cfg, logger, m, checks)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeDB)

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		client, closeRedis, err := redis.NewClient(cfg.Redis, logger.Named("redis"), m)
		if err != nil {
			return fail(err)
		}
		rdb = client
		cleanups = append(cleanups, closeRedis)
		checks.Register("redis", health.PingChecker(health.RedisPing(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})))
	}

	var snapshots service.SnapshotCache
	if cfg.Cache.Enabled {
		bc, err := cache.NewBigCache(cfg.Cache.LifeWindow, cfg.Cache.MaxSizeMB)
		if err != nil {
			return fail(err)
		}
		snapshots = bc
		cleanups = append(cleanups, func() { _ = bc.Close() })
	}

	pool := worker.NewPool(
		worker.WithName("kmeans-fit"),
		worker.WithSize(cfg.Worker.Workers),
		worker.WithQueueSize(cfg.Worker.QueueSize),
		worker.WithLogger(logger.Named("worker").Logger),
		worker.WithMetrics(m),
	)
	stopTimeout := cfg.Worker.StopTimeout
	poolHook := app.Hook{
		Name: "kmeans-fit-pool",
		OnStop: func(ctx context.Context) error {
			if stopTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, stopTimeout)
				defer cancel()
			}
			return pool.Stop(ctx)
		},
	}

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpire, cfg.JWT.RefreshExpireDays)
	kmeansSvc := service.NewKmeansService(repos.chats, repos.kmeans, pool, snapshots, cfg.Kmeans,
		cfg.Worker.FitTimeout, m, logger.Named("kmeans").Logger)
	h := handler.New(
		service.NewUserService(repos.users, tokens, logger.Named("users").Logger),
		service.NewChatService(repos.chats),
		kmeansSvc,
		tokens,
		handler.Options{RefreshExpireDays: cfg.JWT.RefreshExpireDays, CookieSecure: cfg.JWT.CookieSecure},
	)

	rules := newRateLimits(cfg.RateLimit, cfg.CircuitBreaker, rdb, logger, m)
	config.RegisterReloadHook(func(next *config.Config) {
		rules.apply(next.RateLimit)
		kmeansSvc.SetLimits(next.Kmeans)
		logger.Info("runtime limits reloaded")
	})

	return &components{
		handler:   h,
		health:    checks,
		rateLimit: rules.middlewareRules(),
		hooks:     []app.Hook{poolHook},
	}, cleanup, nil
}

func openRepositories(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics, checks *health.Registry) (repositories, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory storage, data is lost on restart")
		st := memrepo.New()
		return repositories{users: st.Users(), chats: st.Chats(), kmeans: st.Kmeans()}, func() {}, nil
	}

	db, err := database.NewDB(cfg.Database, cfg.CircuitBreaker, logger.Named("database"), m)
	if err != nil {
		return repositories{}, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(model.All()...); err != nil {
			closeDB()
			return repositories{}, nil, errors.Join(errors.New("auto migrate failed"), err)
		}
	}
	checks.Register("database", health.PingChecker(db))
	return repositories{
		users:  repository.NewUserRepository(db.DB),
		chats:  repository.NewChatRepository(db.DB),
		kmeans: repository.NewKmeansRepository(db),
	}, closeDB, nil
}

// rateLimits 三条限流规则，配置热更新时原地替换底层实现。
type rateLimits struct {
	global, route, capped *limiter.DynamicLimiter
	cfg                   config.RateLimitConfig
	rdb                   *goredis.Client
	breaker               *breaker.Breaker
	logger                *logging.Logger
}

func newRateLimits(cfg config.RateLimitConfig, cb config.CircuitBreakerConfig, rdb *goredis.Client, logger *logging.Logger, m *metrics.Metrics) *rateLimits {
	r := &rateLimits{
		global: limiter.NewDynamicLimiter(nil),
		route:  limiter.NewDynamicLimiter(nil),
		capped: limiter.NewDynamicLimiter(nil),
		rdb:    rdb,
		logger: logger.Named("ratelimit"),
	}
	if rdb != nil {
		r.breaker = breaker.NewBreaker(breaker.Settings{Name: "redis-ratelimit", Config: cb}, m)
	}
	r.apply(cfg)
	return r
}

func (r *rateLimits) apply(cfg config.RateLimitConfig) {
	r.cfg = cfg
	if !cfg.Enabled {
		r.global.Update(nil)
		r.route.Update(nil)
		r.capped.Update(nil)
		return
	}
	r.global.Update(r.window(cfg.GlobalLimit, cfg))
	r.route.Update(r.window(cfg.RouteLimit, cfg))
	r.capped.Update(r.window(cfg.CapLimit, cfg))
}

// window 优先使用 Redis 固定窗口计数，Redis 不可用或未启用时退化为本地令牌桶。
func (r *rateLimits) window(limit int, cfg config.RateLimitConfig) limiter.Limiter {
	if limit <= 0 {
		return nil
	}
	period := cfg.Period
	if period <= 0 {
		period = time.Minute
	}
	local := limiter.NewLocalLimiter(rate.Limit(float64(limit)/period.Seconds()), limit)
	if r.rdb == nil {
		return local
	}
	return limiter.NewGuardedLimiter(limiter.NewFixedWindowLimiter(r.rdb, limit, period), r.breaker, local, r.logger.Logger)
}

func (r *rateLimits) middlewareRules() []middleware.RateLimitRule {
	return []middleware.RateLimitRule{
		{Scope: "global", Limiter: r.global, Key: middleware.GlobalKey(r.cfg.GlobalPrefix)},
		{Scope: "route", Limiter: r.route, Key: middleware.RouteKey(r.cfg.RoutePrefix)},
		{Scope: "cap", Limiter: r.capped, Key: middleware.CapKey(r.cfg.CapPrefix)},
	}
}
