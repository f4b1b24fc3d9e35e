// Package app 管理服务进程的生命周期：启动服务器、处理退出信号并按序释放资源.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Buypolar-Capital/buypolarcapital/async"
	"github.com/Buypolar-Capital/buypolarcapital/server"
)

// App 应用容器.
type App struct {
	name      string
	logger    *slog.Logger
	opts      options
	lifecycle *Lifecycle
}

// New 创建应用实例.
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{shutdownTimeout: server.DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	lc := NewLifecycle(logger)
	for _, hook := range o.hooks {
		lc.Append(hook)
	}

	return &App{
		name:      name,
		logger:    logger,
		opts:      o,
		lifecycle: lc,
	}
}

// Run 阻塞运行直到收到 SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext 启动全部钩子与服务器，ctx 取消或任一服务器出错时执行优雅关闭.
func (a *App) RunContext(ctx context.Context) error {
	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid(), "servers", len(a.opts.servers))

	if err := a.lifecycle.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group async.RunGroup
	for _, srv := range a.opts.servers {
		group.Go(func() error {
			err := srv.Start(runCtx)
			if err != nil {
				a.logger.Error("server exited with error", "error", err)
				cancel()
			}
			return err
		})
	}

	<-runCtx.Done()
	a.logger.Info("shutting down application", "name", a.name)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer shutdownCancel()

	var errs []error
	for _, srv := range a.opts.servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			a.logger.Error("server failed to stop", "error", err)
			errs = append(errs, err)
		}
	}
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := a.lifecycle.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	for _, cleanup := range a.opts.cleanups {
		cleanup()
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.logger.Info("application shut down gracefully")
	return nil
}

// Healthy 依次执行注册的健康检查，返回第一个失败.
func (a *App) Healthy() error {
	for _, check := range a.opts.healthCheckers {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
