package finance

import (
	"errors"
	"math"
	"testing"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/sim"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

func TestRiskOfRuinFairGame(t *testing.T) {
	res, err := RiskOfRuin(sim.NewSource(31), RuinParams{
		InitialBankroll: 1000,
		BetSize:         100,
		WinRate:         0.5,
		Trials:          5000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RuinProbability < 0.45 || res.RuinProbability > 0.55 {
		t.Errorf("ruin probability = %v, want ~0.5", res.RuinProbability)
	}
	// 对称游走从 10 出发、吸收于 0 和 20 的期望步数为 10*10.
	if math.Abs(res.ExpectedSessionsToAbsorb-100) > 10 {
		t.Errorf("expected sessions = %v, want ~100", res.ExpectedSessionsToAbsorb)
	}
	if res.MaxDrawdown < 0 || res.MaxDrawdown > 1 {
		t.Errorf("max drawdown = %v", res.MaxDrawdown)
	}
	if res.Trials != 5000 {
		t.Errorf("trials = %d", res.Trials)
	}
}

func TestRiskOfRuinMonotone(t *testing.T) {
	low, _ := RiskOfRuin(sim.NewSource(1), RuinParams{InitialBankroll: 1000, BetSize: 100, WinRate: 0.6, Trials: 2000})
	high, _ := RiskOfRuin(sim.NewSource(1), RuinParams{InitialBankroll: 1000, BetSize: 100, WinRate: 0.4, Trials: 2000})
	if low.RuinProbability >= high.RuinProbability {
		t.Errorf("ruin(0.6)=%v should be below ruin(0.4)=%v", low.RuinProbability, high.RuinProbability)
	}
}

func TestRiskOfRuinDefaults(t *testing.T) {
	res, err := RiskOfRuin(sim.NewSource(2), RuinParams{InitialBankroll: 10, BetSize: 1, WinRate: 0.55})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Trials != DefaultRuinTrials {
		t.Errorf("trials = %d, want %d", res.Trials, DefaultRuinTrials)
	}
}

func TestRiskOfRuinInvalid(t *testing.T) {
	cases := []struct {
		params RuinParams
		want   error
	}{
		{RuinParams{InitialBankroll: 0, BetSize: 1, WinRate: 0.5}, xerrors.ErrInvalidBankroll},
		{RuinParams{InitialBankroll: 10, BetSize: 0, WinRate: 0.5}, xerrors.ErrInvalidBetSize},
		{RuinParams{InitialBankroll: 10, BetSize: 1, WinRate: 1}, xerrors.ErrInvalidProbability},
		{RuinParams{InitialBankroll: 10, BetSize: 1, WinRate: 0.5, Trials: -1}, xerrors.ErrInvalidTrials},
		{RuinParams{InitialBankroll: 10, BetSize: 1, WinRate: 0.5, UpperMultiple: 0.5}, xerrors.ErrInvalidUpperMultiple},
	}
	for _, tc := range cases {
		if _, err := RiskOfRuin(sim.NewSource(1), tc.params); !errors.Is(err, tc.want) {
			t.Errorf("%+v: expected %v, got %v", tc.params, tc.want, err)
		}
	}
}

func TestGamblersRuin(t *testing.T) {
	fair, err := GamblersRuin(RuinParams{InitialBankroll: 1000, BetSize: 100, WinRate: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(fair-0.5) > 1e-12 {
		t.Errorf("fair ruin = %v", fair)
	}

	params := RuinParams{InitialBankroll: 1000, BetSize: 100, WinRate: 0.45, Trials: 20000}
	closed, err := GamblersRuin(params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mc, _ := RiskOfRuin(sim.NewSource(9), params)
	if math.Abs(closed-mc.RuinProbability) > 0.02 {
		t.Errorf("closed form %v vs simulated %v", closed, mc.RuinProbability)
	}
}

func TestBankrollTrajectory(t *testing.T) {
	traj, err := BankrollTrajectory(sim.NewSource(4), 100, 5, 0.5, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(traj) != 51 || traj[0] != 100 {
		t.Fatalf("bad trajectory shape: len=%d start=%v", len(traj), traj[0])
	}
	for i := 1; i < len(traj); i++ {
		if d := math.Abs(traj[i] - traj[i-1]); d != 5 {
			t.Fatalf("step %d moved %v", i, d)
		}
	}
	if _, err := BankrollTrajectory(sim.NewSource(4), 100, 5, 0.5, 0); !errors.Is(err, xerrors.ErrInvalidSteps) {
		t.Errorf("expected ErrInvalidSteps, got %v", err)
	}
}
