package finance

import (
	"math"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/sim"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

const (
	// DefaultRuinTrials 默认模拟的会话数.
	DefaultRuinTrials = 1000
	// DefaultUpperMultiple 默认吸收上界：初始资金的 2 倍.
	DefaultUpperMultiple = 2.0
)

// RuinParams 破产概率模拟参数.
type RuinParams struct {
	InitialBankroll float64 `json:"initial_bankroll"`
	BetSize         float64 `json:"bet_size"`
	WinRate         float64 `json:"win_rate"`
	Trials          int     `json:"trials"`         // 0 表示 DefaultRuinTrials.
	UpperMultiple   float64 `json:"upper_multiple"` // 0 表示 DefaultUpperMultiple.
}

// RuinEstimate 破产概率估计.
type RuinEstimate struct {
	RuinProbability          float64 `json:"ruin_probability"`
	ExpectedSessionsToAbsorb float64 `json:"expected_sessions_to_absorb"`
	MaxDrawdown              float64 `json:"max_drawdown"`
	Trials                   int     `json:"trials"`
}

// Validate 校验参数并填充默认值.
func (p *RuinParams) Validate() error {
	if !positiveFinite(p.InitialBankroll) {
		return xerrors.ErrInvalidBankroll
	}
	if !positiveFinite(p.BetSize) {
		return xerrors.ErrInvalidBetSize
	}
	if !finite(p.WinRate) || p.WinRate <= 0 || p.WinRate >= 1 {
		return xerrors.ErrInvalidProbability
	}
	if p.Trials == 0 {
		p.Trials = DefaultRuinTrials
	}
	if p.Trials < 0 {
		return xerrors.ErrInvalidTrials
	}
	if p.UpperMultiple == 0 {
		p.UpperMultiple = DefaultUpperMultiple
	}
	if !finite(p.UpperMultiple) || p.UpperMultiple <= 1 {
		return xerrors.ErrInvalidUpperMultiple
	}
	return nil
}

// RiskOfRuin 重复模拟固定注额的二元下注会话，直到资金归零或触及吸收上界.
func RiskOfRuin(src sim.Source, params RuinParams) (*RuinEstimate, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	target := params.InitialBankroll * params.UpperMultiple

	var ruins, totalSessions int
	var maxDrawdown float64
	for range params.Trials {
		bankroll := params.InitialBankroll
		peak := bankroll
		sessions := 0
		for bankroll > 0 && bankroll < target {
			sessions++
			if src.Float64() < params.WinRate {
				bankroll += params.BetSize
			} else {
				bankroll -= params.BetSize
			}
			peak = math.Max(peak, bankroll)
			dd := (peak - math.Max(bankroll, 0)) / peak
			maxDrawdown = math.Max(maxDrawdown, dd)
		}
		if bankroll <= 0 {
			ruins++
		}
		totalSessions += sessions
	}

	return &RuinEstimate{
		RuinProbability:          float64(ruins) / float64(params.Trials),
		ExpectedSessionsToAbsorb: float64(totalSessions) / float64(params.Trials),
		MaxDrawdown:              maxDrawdown,
		Trials:                   params.Trials,
	}, nil
}

// GamblersRuin 闭式的赌徒破产概率，离散化方式与 RiskOfRuin 一致：
// 距破产 ceil(initial/bet) 注，距上界 ceil((upper-1)*initial/bet) 注.
func GamblersRuin(params RuinParams) (float64, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	down := math.Ceil(params.InitialBankroll/params.BetSize - 1e-9)
	up := math.Ceil((params.UpperMultiple-1)*params.InitialBankroll/params.BetSize - 1e-9)
	total := down + up

	p := params.WinRate
	if math.Abs(p-0.5) < 1e-12 {
		return up / total, nil
	}
	r := (1 - p) / p
	reach := (1 - math.Pow(r, down)) / (1 - math.Pow(r, total))
	return 1 - reach, nil
}

// BankrollTrajectory 模拟一条连续 sessions 次下注的资金曲线，包含初始点.
func BankrollTrajectory(src sim.Source, initialBankroll, betSize, winRate float64, sessions int) ([]float64, error) {
	params := RuinParams{InitialBankroll: initialBankroll, BetSize: betSize, WinRate: winRate}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if sessions <= 0 {
		return nil, xerrors.ErrInvalidSteps
	}
	out := make([]float64, sessions+1)
	out[0] = initialBankroll
	for i := 1; i <= sessions; i++ {
		if src.Float64() < winRate {
			out[i] = out[i-1] + betSize
		} else {
			out[i] = out[i-1] - betSize
		}
	}
	return out, nil
}
