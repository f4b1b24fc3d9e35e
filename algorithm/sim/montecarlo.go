package sim

import (
	"math"
	"slices"

	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// DefaultDt 默认时间步长：一个交易日.
const DefaultDt = 1.0 / 252

// SimulationParams 蒙特卡洛模拟参数.
type SimulationParams struct {
	S0          float64 `json:"s0"`          // 初始价格.
	Steps       int     `json:"steps"`       // 每条路径的步数.
	Simulations int     `json:"simulations"` // 路径条数.
	Mu          float64 `json:"mu"`          // 漂移.
	Sigma       float64 `json:"sigma"`       // 波动.
	Dt          float64 `json:"dt"`          // 时间步，0 表示 DefaultDt.
}

// SimulationResult 终值分布的汇总统计.
type SimulationResult struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"` // 总体标准差（除以 N）.
	P5          float64 `json:"p5"`
	P95         float64 `json:"p95"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	SampleCount int     `json:"sample_count"`
}

// Validate 校验参数，并在 Dt 为 0 时填充默认值.
func (p *SimulationParams) Validate() error {
	if p.Steps <= 0 {
		return xerrors.ErrInvalidSteps
	}
	if p.Simulations <= 0 {
		return xerrors.ErrInvalidSimulations
	}
	if !positiveFinite(p.Sigma) {
		return xerrors.ErrInvalidVolatility
	}
	if !positiveFinite(p.S0) || !finite(p.Mu) {
		return xerrors.ErrInvalidInput
	}
	if p.Dt == 0 {
		p.Dt = DefaultDt
	}
	if !positiveFinite(p.Dt) {
		return xerrors.ErrInvalidTimeStep
	}
	return nil
}

// MonteCarloEngine 单线程蒙特卡洛引擎.
type MonteCarloEngine struct {
	src Source
}

// NewMonteCarloEngine 创建引擎；src 为 nil 时使用 crypto 种子的随机源.
func NewMonteCarloEngine(src Source) *MonteCarloEngine {
	if src == nil {
		src = NewCryptoSource()
	}
	return &MonteCarloEngine{src: src}
}

// Simulate 模拟 Simulations 条几何随机游走并汇总终值.
func (e *MonteCarloEngine) Simulate(params SimulationParams) (*SimulationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	terminals := make([]float64, params.Simulations)
	simulateTerminals(e.src, params, terminals)
	return summarizeFinite(terminals)
}

// summarizeFinite 与 Summarize 相同，但终值或统计量溢出时返回 ErrNumericOverflow.
func summarizeFinite(terminals []float64) (*SimulationResult, error) {
	for i, v := range terminals {
		if !finite(v) {
			return nil, xerrors.ErrNumericOverflow.With("terminal value %d is %v", i, v)
		}
	}
	res := Summarize(terminals)
	if !finite(res.Mean) || !finite(res.StdDev) {
		return nil, xerrors.ErrNumericOverflow.With("mean=%v std_dev=%v", res.Mean, res.StdDev)
	}
	return &res, nil
}

// simulateTerminals 把 len(out) 条路径的终值写入 out.
func simulateTerminals(src Source, p SimulationParams, out []float64) {
	// 预计算常量.
	driftTerm := (p.Mu - 0.5*p.Sigma*p.Sigma) * p.Dt
	volTerm := p.Sigma * math.Sqrt(p.Dt)

	for i := range out {
		s := p.S0
		for range p.Steps {
			s *= math.Exp(driftTerm + volTerm*uniformShock(src))
		}
		out[i] = s
	}
}

// Summarize 计算终值的均值、总体标准差与 5%/95% 分位数.
// terminals 会被原地排序.
func Summarize(terminals []float64) SimulationResult {
	n := len(terminals)
	if n == 0 {
		return SimulationResult{}
	}

	var sum float64
	for _, v := range terminals {
		sum += v
	}
	mean := sum / float64(n)

	var varSum float64
	for _, v := range terminals {
		d := v - mean
		varSum += d * d
	}

	slices.Sort(terminals)
	return SimulationResult{
		Mean:        mean,
		StdDev:      math.Sqrt(varSum / float64(n)),
		P5:          Percentile(terminals, 0.05),
		P95:         Percentile(terminals, 0.95),
		Min:         terminals[0],
		Max:         terminals[n-1],
		SampleCount: n,
	}
}

// Percentile 在已排序切片上取 floor(p*N) 位置的元素，索引钳制到 [0, N-1].
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := int(math.Floor(p * float64(n)))
	idx = max(0, min(n-1, idx))
	return sorted[idx]
}
