package finance

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// RiskMetrics 一组收益率序列的风险指标汇总.
type RiskMetrics struct {
	VaR               decimal.Decimal `json:"var"`
	ExpectedShortfall decimal.Decimal `json:"expected_shortfall"`
	MaxDrawdown       decimal.Decimal `json:"max_drawdown"`
	Sharpe            decimal.Decimal `json:"sharpe"`
	Confidence        float64         `json:"confidence"`
}

// RiskCalculator 提供基础风险计算功能
type RiskCalculator struct{}

func NewRiskCalculator() *RiskCalculator {
	return &RiskCalculator{}
}

func sortedFloats(returns []decimal.Decimal) []float64 {
	vals := make([]float64, len(returns))
	for i, r := range returns {
		vals[i] = r.InexactFloat64()
	}
	sort.Float64s(vals)
	return vals
}

func tailIndex(n int, confidence float64) int {
	idx := int(math.Floor((1-confidence)*float64(n) + 1e-9))
	return max(0, min(n-1, idx))
}

// CalculateVaR 历史模拟法 VaR，以正数表示损失.
func (c *RiskCalculator) CalculateVaR(returns []decimal.Decimal, confidence float64) (decimal.Decimal, error) {
	if len(returns) == 0 {
		return decimal.Zero, xerrors.ErrEmptyData
	}
	if !finite(confidence) || confidence <= 0 || confidence >= 1 {
		return decimal.Zero, xerrors.ErrInvalidConfidence
	}
	vals := sortedFloats(returns)
	return decimal.NewFromFloat(-vals[tailIndex(len(vals), confidence)]), nil
}

// CalculateExpectedShortfall 超过 VaR 的尾部平均损失.
func (c *RiskCalculator) CalculateExpectedShortfall(returns []decimal.Decimal, confidence float64) (decimal.Decimal, error) {
	if len(returns) == 0 {
		return decimal.Zero, xerrors.ErrEmptyData
	}
	if !finite(confidence) || confidence <= 0 || confidence >= 1 {
		return decimal.Zero, xerrors.ErrInvalidConfidence
	}
	vals := sortedFloats(returns)
	idx := tailIndex(len(vals), confidence)
	var sum float64
	for _, v := range vals[:idx+1] {
		sum += v
	}
	return decimal.NewFromFloat(-sum / float64(idx+1)), nil
}

// CalculateMaxDrawdown 计算最大回撤
func (c *RiskCalculator) CalculateMaxDrawdown(prices []decimal.Decimal) (decimal.Decimal, error) {
	if len(prices) == 0 {
		return decimal.Zero, xerrors.ErrEmptyData
	}
	maxPrice := prices[0]
	maxDrawdown := decimal.Zero

	for _, p := range prices {
		if p.GreaterThan(maxPrice) {
			maxPrice = p
		}
		if !maxPrice.IsPositive() {
			continue
		}
		dd := maxPrice.Sub(p).Div(maxPrice)
		if dd.GreaterThan(maxDrawdown) {
			maxDrawdown = dd
		}
	}
	return maxDrawdown, nil
}

// CalculateSharpeRatio 计算夏普比率（总体标准差，未年化）.
func (c *RiskCalculator) CalculateSharpeRatio(returns []decimal.Decimal, riskFreeRate decimal.Decimal) (decimal.Decimal, error) {
	if len(returns) == 0 {
		return decimal.Zero, xerrors.ErrEmptyData
	}
	if len(returns) < 2 {
		return decimal.Zero, nil
	}
	vals := make([]float64, len(returns))
	var sum float64
	for i, r := range returns {
		vals[i] = r.InexactFloat64()
		sum += vals[i]
	}
	n := float64(len(vals))
	mean := sum / n
	var varSum float64
	for _, v := range vals {
		varSum += (v - mean) * (v - mean)
	}
	std := math.Sqrt(varSum / n)
	if std < 1e-12 {
		return decimal.Zero, nil
	}
	rf := riskFreeRate.InexactFloat64()
	return decimal.NewFromFloat((mean - rf) / std), nil
}

// Evaluate 一次性计算全部指标；回撤基于由收益率复利得到的净值曲线.
func (c *RiskCalculator) Evaluate(returns []decimal.Decimal, confidence float64, riskFreeRate decimal.Decimal) (*RiskMetrics, error) {
	varValue, err := c.CalculateVaR(returns, confidence)
	if err != nil {
		return nil, err
	}
	es, err := c.CalculateExpectedShortfall(returns, confidence)
	if err != nil {
		return nil, err
	}
	sharpe, err := c.CalculateSharpeRatio(returns, riskFreeRate)
	if err != nil {
		return nil, err
	}

	equity := make([]decimal.Decimal, len(returns)+1)
	equity[0] = decimal.NewFromInt(1)
	for i, r := range returns {
		equity[i+1] = equity[i].Mul(decimal.NewFromInt(1).Add(r))
	}
	mdd, err := c.CalculateMaxDrawdown(equity)
	if err != nil {
		return nil, err
	}

	return &RiskMetrics{
		VaR:               varValue,
		ExpectedShortfall: es,
		MaxDrawdown:       mdd,
		Sharpe:            sharpe,
		Confidence:        confidence,
	}, nil
}
