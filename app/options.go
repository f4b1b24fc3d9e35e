package app

import (
	"time"

	"github.com/Buypolar-Capital/buypolarcapital/server"
)

// Option 应用配置选项.
type Option func(*options)

type options struct {
	servers         []server.Server
	cleanups        []func()
	healthCheckers  []func() error
	hooks           []Hook
	shutdownTimeout time.Duration
}

// WithServer 注册随应用启停的服务器.
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithCleanup 注册关闭阶段执行的清理函数，按注册顺序执行.
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		if cleanup != nil {
			o.cleanups = append(o.cleanups, cleanup)
		}
	}
}

// WithHealthChecker 注册就绪检查.
func WithHealthChecker(checker func() error) Option {
	return func(o *options) {
		o.healthCheckers = append(o.healthCheckers, checker)
	}
}

// WithHook 注册生命周期钩子，启动正序、停止逆序.
func WithHook(hook Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hook)
	}
}

// WithShutdownTimeout 设置优雅关闭的总时限.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}
