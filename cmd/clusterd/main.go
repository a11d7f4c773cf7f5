// clusterd 提供 K-Means 聚类服务：用户、会话与聚类任务的 HTTP 接口。
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/wyfcoding/clusterd/app"
	"github.com/wyfcoding/clusterd/config"
	"github.com/wyfcoding/clusterd/handler"
	"github.com/wyfcoding/clusterd/idgen"
	"github.com/wyfcoding/clusterd/logging"
	"github.com/wyfcoding/clusterd/metrics"
	"github.com/wyfcoding/clusterd/server"
	"github.com/wyfcoding/clusterd/tracing"
)

var configPath = flag.String("config", "configs/clusterd/config.toml", "path to the TOML config file")

func main() {
	flag.Parse()
	if err := run(*configPath); err != nil {
		slog.Error("clusterd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg := &config.Config{}
	if err := config.Load(path, cfg); err != nil {
		return err
	}

	logger := logging.InitLogger(logging.Config{
		Service:    cfg.Server.Name,
		Module:     "main",
		Level:      cfg.Log.Level,
		Output:     cfg.Log.Output,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	config.PrintWithMask(cfg)

	if err := idgen.Init(cfg.Snowflake); err != nil {
		return err
	}

	shutdownTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics(cfg.Server.Name)

	deps, cleanup, err := wire(cfg, logger, m)
	if err != nil {
		_ = shutdownTracer(context.Background())
		return err
	}

	engine, err := handler.NewRouter(deps.handler, handler.RouterDeps{
		Config:    cfg,
		Logger:    logger.Logger,
		Metrics:   m,
		Health:    deps.health,
		RateLimit: deps.rateLimit,
	})
	if err != nil {
		cleanup()
		_ = shutdownTracer(context.Background())
		return err
	}

	a := app.New(cfg.Server.Name, cfg.Version, logger.Logger,
		app.WithServer(server.NewGinServer(engine, cfg.Server.HTTP, logger.Logger)),
		app.WithHook(deps.hooks...),
		app.WithCleanup(func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error("tracer shutdown failed", "error", err)
			}
		}),
		app.WithCleanup(cleanup),
	)
	return a.Run(context.Background())
}
