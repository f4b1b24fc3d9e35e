package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的标准监控指标。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	// 预定义的标准指标，减少各业务模块的样板代码
	HttpRequestsTotal   *prometheus.CounterVec   // HTTP 请求总量 (维度: method, path, status)
	HttpRequestDuration *prometheus.HistogramVec // HTTP 请求耗时分布

	CalculationsTotal   *prometheus.CounterVec   // 计算次数 (维度: calculator, status)
	CalculationDuration *prometheus.HistogramVec // 计算耗时分布 (维度: calculator)
	SimulatedPaths      *prometheus.CounterVec   // 已模拟的路径/会话条数 (维度: calculator)
	CacheRequests       *prometheus.CounterVec   // 本地缓存访问 (维度: cache, result)

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics 初始化并返回一个新的指标采集器。
// 它会自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HttpRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HttpRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.CalculationsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "quant_calculations_total",
		Help: "Total number of calculator invocations",
	}, []string{"calculator", "status"})

	m.CalculationDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quant_calculation_duration_seconds",
		Help:    "Calculator latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"calculator"})

	m.SimulatedPaths = m.NewCounterVec(prometheus.CounterOpts{
		Name: "quant_simulated_paths_total",
		Help: "Total number of simulated paths or betting sessions",
	}, []string{"calculator"})

	m.CacheRequests = m.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Local cache lookups by result (hit/miss)",
	}, []string{"cache", "result"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// Registry 返回底层注册表，测试中用于采集指标值。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewGauge 创建并注册一个无标签的仪表盘指标。
func (m *Metrics) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	m.registry.MustRegister(g)
	return g
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// ObserveCalculation 记录一次计算的结果与耗时。
func (m *Metrics) ObserveCalculation(calculator string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CalculationsTotal.WithLabelValues(calculator, status).Inc()
	m.CalculationDuration.WithLabelValues(calculator).Observe(time.Since(start).Seconds())
}

// AddSimulatedPaths 累加模拟条数。
func (m *Metrics) AddSimulatedPaths(calculator string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SimulatedPaths.WithLabelValues(calculator).Add(float64(n))
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHttp 在指定端口启动一个独立的 HTTP 服务器用于暴露指标数据。
// 返回一个清理函数用于优雅关闭该服务器。
func (m *Metrics) ExposeHttp(port string) func() {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
