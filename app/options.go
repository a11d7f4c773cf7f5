package app

import (
	"time"

	"github.com/wyfcoding/clusterd/server"
)

// Option 配置 App。
type Option func(*options)

type options struct {
	servers         []server.Server
	cleanups        []func()
	hooks           []Hook
	shutdownTimeout time.Duration
}

// WithServer 注册随 App 启停的服务器。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithCleanup 注册关闭时执行的清理函数，按注册的逆序执行。
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		o.cleanups = append(o.cleanups, cleanup)
	}
}

// WithHook 注册生命周期钩子，启动时先于服务器执行，停止时后于服务器执行。
func WithHook(hooks ...Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks...)
	}
}

// WithShutdownTimeout 优雅关闭的总超时。
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}
