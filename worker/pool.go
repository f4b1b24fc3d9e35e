// Package worker 提供固定大小的后台任务池，用于执行排队的模拟任务.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Buypolar-Capital/buypolarcapital/async"
	"github.com/Buypolar-Capital/buypolarcapital/metrics"
)

var (
	ErrPoolClosed  = errors.New("worker pool is closed")
	ErrPoolFull    = errors.New("worker pool is full")
	ErrTaskTimeout = errors.New("task submission timeout")
)

// Task 是 worker 执行的任务函数；ctx 在池停止时取消。
type Task func(ctx context.Context)

// Pool 是一个通用的 worker 池。
type Pool struct {
	tasks   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	options *poolOptions
	metrics *workerMetrics
	wg      sync.WaitGroup
	closed  atomic.Bool
	active  atomic.Int32 // 当前正在执行任务的 worker 数量
}

type workerMetrics struct {
	busyWorkers prometheus.Gauge
	queueLength prometheus.Gauge
}

type poolOptions struct {
	Logger       *slog.Logger
	PanicHandler func(any)
	Metrics      *metrics.Metrics
	Name         string
	Size         int
	QueueSize    int
}

// Option 定义配置选项。
type Option func(*poolOptions)

// WithName 设置池名称。
func WithName(name string) Option {
	return func(o *poolOptions) {
		o.Name = name
	}
}

// WithSize 设置 worker 数量。
func WithSize(size int) Option {
	return func(o *poolOptions) {
		o.Size = size
	}
}

// WithQueueSize 设置任务队列大小。
func WithQueueSize(size int) Option {
	return func(o *poolOptions) {
		o.QueueSize = size
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(o *poolOptions) {
		o.Logger = l
	}
}

// WithPanicHandler 设置 Panic 处理回调。
func WithPanicHandler(handler func(any)) Option {
	return func(o *poolOptions) {
		o.PanicHandler = handler
	}
}

// WithMetrics 注入指标采集器.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *poolOptions) {
		o.Metrics = m
	}
}

// NewPool 创建并启动一个新的 worker 池。
func NewPool(opts ...Option) *Pool {
	options := &poolOptions{
		Name:      "default-pool",
		Size:      10,
		QueueSize: 100,
		Logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	options.Size = max(options.Size, 1)
	options.QueueSize = max(options.QueueSize, 0)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan Task, options.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		options: options,
	}

	if options.Metrics != nil {
		p.metrics = &workerMetrics{
			busyWorkers: options.Metrics.NewGauge(prometheus.GaugeOpts{
				Name:        "worker_pool_busy_workers",
				Help:        "Number of workers currently executing a task",
				ConstLabels: prometheus.Labels{"pool": options.Name},
			}),
			queueLength: options.Metrics.NewGauge(prometheus.GaugeOpts{
				Name:        "worker_pool_queue_length",
				Help:        "Current length of the task queue",
				ConstLabels: prometheus.Labels{"pool": options.Name},
			}),
		}
	}

	p.start()
	return p
}

func (p *Pool) start() {
	p.options.Logger.Info("Worker pool starting", "name", p.options.Name, "size", p.options.Size)
	for range p.options.Size {
		p.wg.Add(1)
		async.SafeGo(func() {
			defer p.wg.Done()
			p.runWorker()
		})
	}
}

func (p *Pool) runWorker() {
	for {
		select {
		case task := <-p.tasks:
			p.observeQueue()
			p.executeTask(task)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) observeQueue() {
	if p.metrics != nil {
		p.metrics.queueLength.Set(float64(len(p.tasks)))
	}
}

func (p *Pool) executeTask(task Task) {
	p.active.Add(1)
	if p.metrics != nil {
		p.metrics.busyWorkers.Inc()
	}
	defer func() {
		p.active.Add(-1)
		if p.metrics != nil {
			p.metrics.busyWorkers.Dec()
		}
		if r := recover(); r != nil {
			if p.options.PanicHandler != nil {
				p.options.PanicHandler(r)
			} else {
				p.options.Logger.Error("Worker task panic recovered", "pool", p.options.Name, "panic", r)
			}
		}
	}()
	task(p.ctx)
}

// Active 返回正在执行任务的 worker 数量。
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Submit 提交一个任务。如果池已满，则阻塞直到有空位或池被关闭。
func (p *Pool) Submit(task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		p.observeQueue()
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// SubmitWithTimeout 提交一个带超时的任务。
func (p *Pool) SubmitWithTimeout(task Task, timeout time.Duration) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.tasks <- task:
		p.observeQueue()
		return nil
	case <-timer.C:
		return ErrTaskTimeout
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// TrySubmit 尝试提交一个任务。如果池已满，立即返回 ErrPoolFull。
func (p *Pool) TrySubmit(task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		p.observeQueue()
		return nil
	default:
		return ErrPoolFull
	}
}

// Stop 取消正在执行的任务并等待所有 worker 退出；队列中尚未开始的任务被丢弃。
func (p *Pool) Stop() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.options.Logger.Info("Worker pool stopped", "name", p.options.Name)
}
