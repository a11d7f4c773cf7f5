// Package contextx 在 context.Context 中安全地存取请求级信息（请求 ID、用户、客户端 IP）。
// 使用私有类型作为 Key，防止跨包冲突。
package contextx

import "context"

type contextKey int

const (
	UserIDKey    contextKey = iota // 用户唯一标识
	IPKey                          // 客户端 IP
	RequestIDKey                   // 请求唯一标识
)

// WithRequestID 将请求 ID 注入到 Context 中。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID 从 Context 中提取请求 ID。
func GetRequestID(ctx context.Context) string {
	if val, ok := ctx.Value(RequestIDKey).(string); ok {
		return val
	}
	return ""
}

// WithUserID 将用户 ID 注入到给定的 Context 中。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID 提取用户 ID，不存在则返回空字符串。
func GetUserID(ctx context.Context) string {
	if val, ok := ctx.Value(UserIDKey).(string); ok {
		return val
	}
	return ""
}

// WithIP 将客户端 IP 地址注入到 Context 中。
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, IPKey, ip)
}

// GetIP 提取客户端 IP，不存在则返回 0.0.0.0。
func GetIP(ctx context.Context) string {
	if val, ok := ctx.Value(IPKey).(string); ok {
		return val
	}
	return "0.0.0.0"
}

// Detach 返回一个不随原请求取消的 Context，保留请求 ID 与用户信息，供后台任务使用。
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
