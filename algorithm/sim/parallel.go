package sim

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/Buypolar-Capital/buypolarcapital/cast"
)

// DefaultBatchSize 每个批次模拟的路径条数.
const DefaultBatchSize = 1000

// ParallelEngine 把模拟拆成固定大小的批次并行执行.
// 每个批次使用由 (seed, 批次号) 派生的独立随机流，结果按批次顺序合并，
// 因此在相同种子下输出与调度顺序无关.
type ParallelEngine struct {
	workers   int
	batchSize int
	seed      uint64
}

// NewParallelEngine 创建并行引擎；workers 或 batchSize 非正时使用默认值.
func NewParallelEngine(workers, batchSize int, seed uint64) *ParallelEngine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ParallelEngine{workers: workers, batchSize: batchSize, seed: seed}
}

// Simulate 并行模拟；ctx 取消后尚未开始的批次直接放弃并返回 ctx.Err().
func (e *ParallelEngine) Simulate(ctx context.Context, params SimulationParams) (*SimulationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terminals := make([]float64, params.Simulations)
	batches := (params.Simulations + e.batchSize - 1) / e.batchSize

	p := pool.New().WithContext(ctx).WithMaxGoroutines(e.workers).WithCancelOnError().WithFirstError()
	for b := range batches {
		lo := b * e.batchSize
		hi := min(lo+e.batchSize, params.Simulations)
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			simulateTerminals(NewSource(e.seed, cast.IntToUint64(b)), params, terminals[lo:hi])
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return summarizeFinite(terminals)
}
