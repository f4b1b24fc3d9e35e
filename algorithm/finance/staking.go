package finance

import (
	"math"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/types"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// KellyResult 凯利仓位计算结果.
type KellyResult struct {
	Fraction      float64 `json:"fraction"`
	ExpectedValue float64 `json:"expected_value"`
	// GrowthRate 在 Fraction 处的期望对数增长率；超出定义域时为 NaN 或 -Inf.
	GrowthRate float64 `json:"growth_rate"`
}

// GrowthPoint 增长曲线上的一点.
type GrowthPoint struct {
	Fraction   float64 `json:"fraction"`
	GrowthRate float64 `json:"growth_rate"`
}

func validateBet(p, winMultiple, lossFraction float64) error {
	if !finite(p) || p <= 0 || p >= 1 {
		return xerrors.ErrInvalidProbability
	}
	if !positiveFinite(winMultiple) || !positiveFinite(lossFraction) {
		return xerrors.ErrInvalidMultiple
	}
	return nil
}

// Kelly 使用 KellyScaled 分母计算凯利分数.
//
//	fraction = (p*b - (1-p)*a) / (b*a)
func Kelly(p, winMultiple, lossFraction float64) (*KellyResult, error) {
	return KellyWith(types.KellyScaled, p, winMultiple, lossFraction)
}

// KellyWith 按指定分母形式计算凯利分数；未知形式视为 KellyScaled.
func KellyWith(formula types.KellyFormula, p, winMultiple, lossFraction float64) (*KellyResult, error) {
	if err := validateBet(p, winMultiple, lossFraction); err != nil {
		return nil, err
	}
	edge := p*winMultiple - (1-p)*lossFraction

	var fraction float64
	switch formula {
	case types.KellyClassic:
		fraction = edge / winMultiple
	default:
		fraction = edge / (winMultiple * lossFraction)
	}

	growth, _ := LogGrowth(p, winMultiple, lossFraction, fraction)
	return &KellyResult{
		Fraction:      fraction,
		ExpectedValue: edge,
		GrowthRate:    growth,
	}, nil
}

// LogGrowth 期望对数增长率 p*ln(1+f*b) + (1-p)*ln(1-f*a).
// f*b <= -1 时返回 NaN，f*a >= 1 时返回 -Inf，二者都伴随 ErrMathDomain.
func LogGrowth(p, winMultiple, lossFraction, fraction float64) (float64, error) {
	win := 1 + fraction*winMultiple
	loss := 1 - fraction*lossFraction
	if win <= 0 {
		return math.NaN(), xerrors.ErrMathDomain
	}
	if loss <= 0 {
		return math.Inf(-1), xerrors.ErrMathDomain
	}
	return p*math.Log(win) + (1-p)*math.Log(loss), nil
}

// GrowthCurve 在 f ∈ [0, 1] 上以 step 为间隔采样增长率曲线.
func GrowthCurve(p, winMultiple, lossFraction, step float64) ([]GrowthPoint, error) {
	if err := validateBet(p, winMultiple, lossFraction); err != nil {
		return nil, err
	}
	if !positiveFinite(step) || step > 1 {
		return nil, xerrors.ErrInvalidInput
	}
	n := int(math.Floor(1/step + 1e-9))
	points := make([]GrowthPoint, 0, n+1)
	for i := 0; i <= n; i++ {
		f := float64(i) * step
		g, _ := LogGrowth(p, winMultiple, lossFraction, f)
		points = append(points, GrowthPoint{Fraction: f, GrowthRate: g})
	}
	return points, nil
}
