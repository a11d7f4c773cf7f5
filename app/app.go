// Package app 管理进程生命周期：启动服务器、监听信号、按序关闭资源。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 15 * time.Second

// App 进程级容器。
type App struct {
	name      string
	version   string
	logger    *slog.Logger
	opts      options
	lifecycle *Lifecycle
}

// New 创建 App。
func New(name, version string, logger *slog.Logger, opts ...Option) *App {
	o := options{shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	lc := NewLifecycle(logger)
	for _, h := range o.hooks {
		lc.Append(h)
	}
	return &App{name: name, version: version, logger: logger, opts: o, lifecycle: lc}
}

// Run 阻塞运行，直到收到 SIGINT/SIGTERM、ctx 被取消或任一服务器失败。
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("application starting", "name", a.name, "version", a.version, "pid", os.Getpid())

	if err := a.lifecycle.Start(ctx); err != nil {
		a.shutdown()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.opts.servers {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		a.logger.Error("server exited with error", "error", runErr)
	}
	a.logger.Info("shutting down application", "name", a.name)

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	a.logger.Info("application shut down")
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range a.opts.servers {
		if err := srv.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.lifecycle.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.opts.cleanups) - 1; i >= 0; i-- {
		a.opts.cleanups[i]()
	}
	return errors.Join(errs...)
}
