package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Buypolar-Capital/buypolarcapital/config"
)

// GRPCServer 暴露标准健康检查服务与反射的 gRPC 服务器.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
	addr   string
	opts   Options
}

// NewGRPCServer 构造 gRPC 服务器；register 可为 nil.
func NewGRPCServer(addr string, keepaliveCfg config.GRPCKeepaliveConfig, logger *slog.Logger, register func(*grpc.Server), interceptors []grpc.UnaryServerInterceptor, options ...Options) *GRPCServer {
	grpcOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.KeepaliveParams(toServerParams(keepaliveCfg)),
		grpc.KeepaliveEnforcementPolicy(toEnforcement(keepaliveCfg)),
	}
	if len(interceptors) > 0 {
		grpcOpts = append(grpcOpts, grpc.ChainUnaryInterceptor(interceptors...))
	}

	s := grpc.NewServer(grpcOpts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if register != nil {
		register(s)
	}
	reflection.Register(s)

	return &GRPCServer{
		server: s,
		health: hs,
		addr:   addr,
		logger: logger,
		opts:   resolveOptions(options),
	}
}

// SetServingStatus 设置指定服务的健康状态，空串代表整体状态.
func (s *GRPCServer) SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus(service, status)
}

// Start 启动 TCP 监听并运行 gRPC 服务.
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve 在给定监听器上运行直到 ctx 取消.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("starting grpc server", "addr", lis.Addr().String())
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc server stopping due to context cancellation")
		return s.Stop(context.Background())
	case err := <-errChan:
		return err
	}
}

// Stop 优雅关停，超过 ShutdownTimeout 后强制停止.
func (s *GRPCServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping grpc server gracefully")
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(s.opts.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		return nil
	case <-timer.C:
		s.logger.Warn("grpc server graceful stop timeout, forcing stop")
		s.server.Stop()
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}
