// Package health 聚合依赖探测并暴露 /healthz。
package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultTimeout = 2 * time.Second

// Checker 单个依赖的探测函数。
type Checker func(ctx context.Context) error

// Pinger 数据库与 Redis 客户端都满足的最小探测接口。
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker 包装带 Ping 的依赖。
func PingChecker(p Pinger) Checker {
	return func(ctx context.Context) error {
		if p == nil {
			return errors.New("dependency is nil")
		}
		return p.Ping(ctx)
	}
}

// RedisPing 适配 go-redis 的 Ping(ctx) *StatusCmd。
type RedisPing func(ctx context.Context) error

func (f RedisPing) Ping(ctx context.Context) error { return f(ctx) }

// Registry 保存具名探测器。
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry timeout 为 0 时使用默认 2s。
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Registry{checkers: make(map[string]Checker), timeout: timeout}
}

// Register 注册或覆盖同名探测器。
func (r *Registry) Register(name string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Check 并发执行全部探测，返回每个依赖的状态，任一失败时 ok 为 false。
func (r *Registry) Check(ctx context.Context) (map[string]string, bool) {
	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = make(map[string]string, len(checkers))
		ok     = true
	)
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := "ok"
			if err := c(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			result[name] = status
			if status != "ok" {
				ok = false
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return result, ok
}

// Handler 返回 gin 处理器：全部正常时 200，否则 503。
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, ok := r.Check(c.Request.Context())
		status, code := "ok", http.StatusOK
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "checks": checks})
	}
}
