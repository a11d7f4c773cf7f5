// Package server 提供 HTTP 服务器的启动与优雅关闭封装。
package server

import "context"

// Server 统一的服务器生命周期契约。
type Server interface {
	// Start 阻塞运行，ctx 取消时返回。
	Start(ctx context.Context) error
	// Stop 等待在途请求完成，受 ctx 超时约束。
	Stop(ctx context.Context) error
}
