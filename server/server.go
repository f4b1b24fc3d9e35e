// Package server 提供 HTTP、gRPC 与 WebSocket 服务的生命周期封装.
package server

import (
	"context"
	"time"
)

// DefaultShutdownTimeout 优雅关闭的默认等待时间.
const DefaultShutdownTimeout = 10 * time.Second

// Server 统一的服务生命周期契约.
type Server interface {
	// Start 阻塞运行直到 ctx 取消或出现不可恢复的错误.
	Start(ctx context.Context) error
	// Stop 优雅停止，等待进行中的请求完成.
	Stop(ctx context.Context) error
}

// Options 服务通用参数.
type Options struct {
	ShutdownTimeout time.Duration
}

func resolveOptions(options []Options) Options {
	opts := Options{ShutdownTimeout: DefaultShutdownTimeout}
	if len(options) > 0 && options[0].ShutdownTimeout > 0 {
		opts = options[0]
	}
	return opts
}
