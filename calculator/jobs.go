package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/finance"
	"github.com/Buypolar-Capital/buypolarcapital/algorithm/sim"
	"github.com/Buypolar-Capital/buypolarcapital/cache"
	"github.com/Buypolar-Capital/buypolarcapital/metrics"
	"github.com/Buypolar-Capital/buypolarcapital/worker"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// JobKind 任务类型.
type JobKind string

const (
	JobMonteCarlo JobKind = "montecarlo"
	JobRuin       JobKind = "ruin"
)

// JobStatus 任务状态.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job 任务快照.
type Job struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"kind"`
	Status     JobStatus       `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorCode  int             `json:"error_code,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Topic 任务状态推送的主题名.
func (j *Job) Topic() string {
	return JobTopic(j.ID)
}

// JobTopic 返回单个任务的推送主题.
func JobTopic(id string) string {
	return "job:" + id
}

// AllJobsTopic 订阅全部任务状态变化的主题.
const AllJobsTopic = "jobs"

// Notifier 任务状态变化的推送目标，如 WebSocket 中心.
type Notifier interface {
	Broadcast(topic string, payload any)
}

type jobOptions struct {
	workers   int
	queueSize int
	ttl       time.Duration
	notifier  Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// JobOption JobQueue 配置项.
type JobOption func(*jobOptions)

// WithWorkers 并发执行的任务数.
func WithWorkers(n int) JobOption {
	return func(o *jobOptions) { o.workers = n }
}

// WithQueueSize 等待队列长度，超出时提交返回 ErrQueueFull.
func WithQueueSize(n int) JobOption {
	return func(o *jobOptions) { o.queueSize = n }
}

// WithResultTTL 结果保留时长.
func WithResultTTL(ttl time.Duration) JobOption {
	return func(o *jobOptions) { o.ttl = ttl }
}

// WithNotifier 设置状态推送目标.
func WithNotifier(n Notifier) JobOption {
	return func(o *jobOptions) { o.notifier = n }
}

// WithJobLogger 设置日志.
func WithJobLogger(l *slog.Logger) JobOption {
	return func(o *jobOptions) { o.logger = l }
}

// WithJobMetrics 为内部 worker 池注册指标.
func WithJobMetrics(m *metrics.Metrics) JobOption {
	return func(o *jobOptions) { o.metrics = m }
}

// JobQueue 把长耗时计算放到 worker 池中异步执行，结果写入带 TTL 的缓存.
type JobQueue struct {
	svc      *Service
	pool     *worker.Pool
	store    cache.Cache
	ttl      time.Duration
	notifier Notifier
	logger   *slog.Logger
}

// NewJobQueue 创建并启动任务队列.
func NewJobQueue(svc *Service, store cache.Cache, opts ...JobOption) *JobQueue {
	o := jobOptions{workers: 4, queueSize: 64, ttl: 10 * time.Minute, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("module", "job_queue")

	poolOpts := []worker.Option{
		worker.WithName("jobs"),
		worker.WithSize(o.workers),
		worker.WithQueueSize(o.queueSize),
		worker.WithLogger(logger),
	}
	if o.metrics != nil {
		poolOpts = append(poolOpts, worker.WithMetrics(o.metrics))
	}

	return &JobQueue{
		svc:      svc,
		pool:     worker.NewPool(poolOpts...),
		store:    store,
		ttl:      o.ttl,
		notifier: o.notifier,
		logger:   logger,
	}
}

// SubmitMonteCarlo 提交蒙特卡洛任务，参数先同步校验.
func (q *JobQueue) SubmitMonteCarlo(ctx context.Context, params sim.SimulationParams) (*Job, error) {
	check := params
	if err := q.svc.checkSimulation(q.svc.Config(), &check); err != nil {
		return nil, err
	}
	if err := check.Validate(); err != nil {
		return nil, err
	}
	return q.submit(ctx, JobMonteCarlo, func(ctx context.Context) (any, error) {
		return q.svc.Simulate(ctx, params)
	})
}

// SubmitRuin 提交破产概率任务，参数先同步校验.
func (q *JobQueue) SubmitRuin(ctx context.Context, params finance.RuinParams) (*Job, error) {
	check := params
	if err := q.svc.prepareRuin(q.svc.Config(), &check); err != nil {
		return nil, err
	}
	return q.submit(ctx, JobRuin, func(ctx context.Context) (any, error) {
		return q.svc.RiskOfRuin(ctx, params)
	})
}

func (q *JobQueue) submit(ctx context.Context, kind JobKind, run func(context.Context) (any, error)) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.save(ctx, job); err != nil {
		return nil, err
	}

	err := q.pool.TrySubmit(func(poolCtx context.Context) {
		q.execute(poolCtx, *job, run)
	})
	if err != nil {
		_ = q.store.Delete(ctx, job.ID)
		if errors.Is(err, worker.ErrPoolFull) {
			return nil, xerrors.ErrQueueFull.With("job %s rejected", kind)
		}
		return nil, xerrors.Wrap(err, xerrors.ErrUnavailable, "job queue unavailable")
	}

	q.logger.InfoContext(ctx, "job submitted", "job_id", job.ID, "kind", kind)
	return job, nil
}

func (q *JobQueue) execute(ctx context.Context, job Job, run func(context.Context) (any, error)) {
	started := time.Now().UTC()
	job.Status = JobRunning
	job.StartedAt = &started
	_ = q.save(ctx, &job)

	result, err := run(ctx)

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	if err == nil {
		job.Result, err = json.Marshal(result)
	}
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		if xe, ok := xerrors.FromError(err); ok {
			job.Error = xe.Message
			if xe.Detail != "" {
				job.Error += ": " + xe.Detail
			}
			job.ErrorCode = xe.Code
		}
		q.logger.WarnContext(ctx, "job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
	} else {
		job.Status = JobSucceeded
		q.logger.InfoContext(ctx, "job finished", "job_id", job.ID, "kind", job.Kind, "duration", finished.Sub(started))
	}
	// 池关闭时 ctx 已取消，仍需落盘最终状态.
	_ = q.save(context.WithoutCancel(ctx), &job)
}

func (q *JobQueue) save(ctx context.Context, job *Job) error {
	if err := q.store.Set(ctx, job.ID, job, q.ttl); err != nil {
		q.logger.ErrorContext(ctx, "failed to store job", "job_id", job.ID, "error", err)
		return xerrors.WrapInternal(err, "store job")
	}
	if q.notifier != nil {
		q.notifier.Broadcast(job.Topic(), job)
		q.notifier.Broadcast(AllJobsTopic, job)
	}
	return nil
}

// Get 查询任务；未知或已过期返回 ErrJobNotFound.
func (q *JobQueue) Get(ctx context.Context, id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, xerrors.ErrJobNotFound.With("malformed job id %q", id)
	}
	var job Job
	if err := q.store.Get(ctx, id, &job); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, xerrors.ErrJobNotFound.With("job %s", id)
		}
		return nil, xerrors.WrapInternal(err, "load job")
	}
	return &job, nil
}

// Active 正在执行的任务数.
func (q *JobQueue) Active() int {
	return q.pool.Active()
}

// Stop 取消执行中的任务并等待 worker 退出.
func (q *JobQueue) Stop() {
	q.pool.Stop()
}
