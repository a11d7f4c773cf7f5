// Package async 提供带 panic 恢复的 goroutine 启动工具。
package async

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrPanicRecovered 表示异步任务中恢复的 panic。
var ErrPanicRecovered = errors.New("async task panic recovered")

// SafeGo 启动 goroutine，panic 记录日志后吞掉，不影响进程。
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("async task panic recovered",
					"error", fmt.Errorf("%w: %v", ErrPanicRecovered, rec),
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// Recover 在调用方自己的 defer 中使用，把 panic 转成错误返回。
func Recover(errp *error) {
	if rec := recover(); rec != nil {
		*errp = fmt.Errorf("%w: %v", ErrPanicRecovered, rec)
		slog.Error("task panic recovered", "panic", rec, "stack", string(debug.Stack()))
	}
}
