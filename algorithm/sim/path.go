package sim

import (
	"math"

	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// PathPoint 路径上的一个采样点.
type PathPoint struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// Path 按步号递增排列的采样点序列，Step 从 0 开始逐一递增.
type Path []PathPoint

// Trend 路径终点相对起点的方向.
type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
	TrendFlat Trend = "FLAT"
)

// StopFunc 在每一步之后对未截断的新值求值，返回 true 时路径在该点之前截断.
type StopFunc func(step int, value float64) bool

type pathOptions struct {
	stop       StopFunc
	min, max   float64
	bounded    bool
	invertSign bool
}

// PathOption 路径生成选项.
type PathOption func(*pathOptions)

// WithBounds 每一步之后把值钳制到 [min, max].
func WithBounds(minValue, maxValue float64) PathOption {
	return func(o *pathOptions) {
		o.min, o.max = minValue, maxValue
		o.bounded = true
	}
}

// WithInvertSign 对每一步增量取反（画布坐标系中 y 轴向下）.
func WithInvertSign() PathOption {
	return func(o *pathOptions) {
		o.invertSign = true
	}
}

// WithStopWhen 设置提前终止条件.
func WithStopWhen(fn StopFunc) PathOption {
	return func(o *pathOptions) {
		o.stop = fn
	}
}

// GeneratePath 生成一条缩放随机游走路径：
//
//	value[i] = value[i-1] + volatility * dW * sqrt(dt),  dW ~ U[-1, 1]
//
// 返回的路径包含第 0 步的起点，未截断时长度为 steps+1.
func GeneratePath(src Source, steps int, volatility, dt, startValue float64, opts ...PathOption) (Path, error) {
	if steps <= 0 {
		return nil, xerrors.ErrInvalidSteps
	}
	if !positiveFinite(dt) {
		return nil, xerrors.ErrInvalidTimeStep
	}
	if !positiveFinite(volatility) {
		return nil, xerrors.ErrInvalidVolatility
	}
	if !finite(startValue) {
		return nil, xerrors.ErrInvalidInput
	}

	o := &pathOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.bounded && (!finite(o.min) || !finite(o.max) || o.min > o.max) {
		return nil, xerrors.ErrInvalidBounds
	}

	scale := volatility * math.Sqrt(dt)
	if o.invertSign {
		scale = -scale
	}

	path := make(Path, 1, steps+1)
	path[0] = PathPoint{Step: 0, Value: startValue}
	value := startValue
	for i := 1; i <= steps; i++ {
		value += scale * uniformShock(src)
		if o.stop != nil && o.stop(i, value) {
			break
		}
		if o.bounded {
			value = math.Max(o.min, math.Min(o.max, value))
		}
		if !finite(value) {
			return nil, xerrors.ErrNumericOverflow.With("value at step %d is %v", i, value)
		}
		path = append(path, PathPoint{Step: i, Value: value})
	}
	return path, nil
}

// Values 返回路径上的数值序列.
func (p Path) Values() []float64 {
	out := make([]float64, len(p))
	for i, pt := range p {
		out[i] = pt.Value
	}
	return out
}

// Last 返回终点；空路径返回零值.
func (p Path) Last() PathPoint {
	if len(p) == 0 {
		return PathPoint{}
	}
	return p[len(p)-1]
}

// Truncated 判断路径是否因终止条件提前结束.
func (p Path) Truncated(steps int) bool {
	return len(p) < steps+1
}

// Trend 比较终点与起点.
func (p Path) Trend() Trend {
	if len(p) < 2 {
		return TrendFlat
	}
	switch last, first := p.Last().Value, p[0].Value; {
	case last > first:
		return TrendUp
	case last < first:
		return TrendDown
	default:
		return TrendFlat
	}
}

// SimpleRandomWalk 生成从 0 出发、每步 ±1 的对称随机游走.
func SimpleRandomWalk(src Source, steps int) ([]int, error) {
	if steps <= 0 {
		return nil, xerrors.ErrInvalidSteps
	}
	walk := make([]int, steps+1)
	for i := 1; i <= steps; i++ {
		if src.Float64() > 0.5 {
			walk[i] = walk[i-1] + 1
		} else {
			walk[i] = walk[i-1] - 1
		}
	}
	return walk, nil
}

// SimpleRandomWalks 生成多条独立的对称随机游走.
func SimpleRandomWalks(src Source, walks, steps int) ([][]int, error) {
	if walks <= 0 {
		return nil, xerrors.ErrInvalidSimulations
	}
	out := make([][]int, walks)
	for w := range walks {
		walk, err := SimpleRandomWalk(src, steps)
		if err != nil {
			return nil, err
		}
		out[w] = walk
	}
	return out, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func positiveFinite(x float64) bool {
	return finite(x) && x > 0
}
