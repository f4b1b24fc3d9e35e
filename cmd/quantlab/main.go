// Command quantlab 以 HTTP/gRPC/WebSocket 形式提供期权定价、路径模拟与仓位计算服务.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Buypolar-Capital/buypolarcapital/app"
	"github.com/Buypolar-Capital/buypolarcapital/cache"
	"github.com/Buypolar-Capital/buypolarcapital/calculator"
	"github.com/Buypolar-Capital/buypolarcapital/config"
	"github.com/Buypolar-Capital/buypolarcapital/logging"
	"github.com/Buypolar-Capital/buypolarcapital/metrics"
	"github.com/Buypolar-Capital/buypolarcapital/middleware"
	"github.com/Buypolar-Capital/buypolarcapital/server"
	"github.com/Buypolar-Capital/buypolarcapital/tracing"
)

func main() {
	var confPath string
	flag.StringVar(&confPath, "conf", "", "path to config file (toml); defaults are used when empty")
	flag.Parse()

	if err := run(confPath); err != nil {
		fmt.Fprintf(os.Stderr, "quantlab: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path == "" {
		return cfg, config.Validate(cfg)
	}
	return cfg, config.Load(path, cfg)
}

func run(confPath string) error {
	cfg, err := loadConfig(confPath)
	if err != nil {
		return err
	}
	name := cfg.Server.Name

	logger := logging.NewFromConfig(cfg.Log.LoggerConfig(name, "main"))
	logging.SetDefault(logger)
	config.PrintWithMask(cfg)

	if cfg.Server.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	var opts []app.Option

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = name
	}
	done := logging.LogDuration(context.Background(), "tracer init", "enabled", cfg.Tracing.Enabled)
	shutdownTracer, err := tracing.InitTracer(context.Background(), cfg.Tracing)
	if err != nil {
		return err
	}
	done()
	opts = append(opts, app.WithCleanup(func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}))

	m := metrics.NewMetrics(name)
	m.RegisterBuildInfo(name, cfg.Version)

	svcOpts := []calculator.Option{
		calculator.WithMetrics(m),
		calculator.WithLogger(logger.Logger),
	}
	if cfg.Cache.Enabled {
		quotes, err := cache.NewBigCache(cfg.Cache.TTL, cfg.Cache.MaxSizeMB,
			cache.WithName("quotes"), cache.WithShards(cfg.Cache.Shards), cache.WithMetrics(m))
		if err != nil {
			return err
		}
		svcOpts = append(svcOpts, calculator.WithQuoteCache(quotes, cfg.Cache.TTL))
		opts = append(opts, app.WithCleanup(func() { _ = quotes.Close() }))
	}
	svc := calculator.NewService(cfg.Simulation, svcOpts...)
	config.RegisterReloadHook(func(c *config.Config) {
		svc.UpdateConfig(c.Simulation)
	})

	jobStore, err := cache.NewBigCache(cfg.Jobs.ResultTTL, cfg.Jobs.CacheSizeMB, cache.WithName("jobs"), cache.WithMetrics(m))
	if err != nil {
		return err
	}
	opts = append(opts, app.WithCleanup(func() { _ = jobStore.Close() }))

	ws := server.NewWSManager(logger.Logger)
	jobs := calculator.NewJobQueue(svc, jobStore,
		calculator.WithWorkers(cfg.Jobs.Workers),
		calculator.WithQueueSize(cfg.Jobs.QueueSize),
		calculator.WithResultTTL(cfg.Jobs.ResultTTL),
		calculator.WithNotifier(ws),
		calculator.WithJobLogger(logger.Logger),
		calculator.WithJobMetrics(m),
	)

	var draining atomic.Bool
	ready := func() error {
		if draining.Load() {
			return errors.New("shutting down")
		}
		return nil
	}
	opts = append(opts,
		app.WithHealthChecker(ready),
		app.WithHook(app.Hook{
			Name: "job-queue",
			OnStop: func(context.Context) error {
				draining.Store(true)
				jobs.Stop()
				return nil
			},
		}),
	)

	engine := server.NewDefaultGinEngine(httpMiddlewares(cfg, m, logger)...)
	handlerOpts := []calculator.HandlerOption{
		calculator.WithWebSocket(ws),
	}
	if cfg.RateLimit.Enabled {
		handlerOpts = append(handlerOpts, calculator.WithRateLimit(middleware.NewLocalRateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst)))
	}
	if cfg.Metrics.Enabled {
		handlerOpts = append(handlerOpts, calculator.WithMetricsHandler(cfg.Metrics.Path, m.Handler()))
	}

	var application *app.App
	handlerOpts = append(handlerOpts, calculator.WithHealthCheck(func() error { return application.Healthy() }))
	calculator.NewHandler(name, svc, jobs, handlerOpts...).Register(engine)

	serverOpts := server.Options{ShutdownTimeout: cfg.Server.ShutdownTimeout}
	opts = append(opts,
		app.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		app.WithServer(
			server.NewGinServer(engine, server.HTTPConfig{
				Addr:              net.JoinHostPort(cfg.Server.HTTP.Addr, strconv.Itoa(cfg.Server.HTTP.Port)),
				ReadTimeout:       cfg.Server.HTTP.ReadTimeout,
				ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
				WriteTimeout:      cfg.Server.HTTP.WriteTimeout,
				IdleTimeout:       cfg.Server.HTTP.IdleTimeout,
			}, logger.Logger, serverOpts),
			ws,
		),
	)
	if cfg.Server.GRPC.Enabled {
		grpcSrv := server.NewGRPCServer(
			net.JoinHostPort(cfg.Server.GRPC.Addr, strconv.Itoa(cfg.Server.GRPC.Port)),
			cfg.Server.GRPC.Keepalive, logger.Logger, nil, nil, serverOpts,
		)
		opts = append(opts,
			app.WithServer(grpcSrv),
			app.WithHook(app.Hook{
				Name: "grpc-health",
				OnStart: func(context.Context) error {
					grpcSrv.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
					return nil
				},
				OnStop: func(context.Context) error {
					grpcSrv.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
					return nil
				},
			}),
		)
	}

	application = app.New(name, logger.Logger, opts...)
	return application.Run()
}

func httpMiddlewares(cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) []gin.HandlerFunc {
	mws := []gin.HandlerFunc{
		middleware.Recovery(logger.Logger),
		middleware.RequestID(),
	}
	if cfg.Tracing.Enabled {
		mws = append(mws, middleware.TracingMiddleware(cfg.Server.Name))
	}
	mws = append(mws,
		middleware.Logger(logger.Logger),
		middleware.HTTPMetricsMiddleware(m, cfg.Metrics.Path, "/healthz", "/api/v1/ws"),
		middleware.MaxBodyBytes(cfg.Server.HTTP.MaxBodyBytes),
		middleware.TimeoutMiddleware(cfg.Server.HTTP.WriteTimeout),
	)
	return mws
}
