package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

func TestSimulateInvalidArgs(t *testing.T) {
	engine := NewMonteCarloEngine(NewSource(1))
	cases := []struct {
		name   string
		params SimulationParams
		want   error
	}{
		{"zero steps", SimulationParams{S0: 100, Steps: 0, Simulations: 10, Sigma: 0.2}, xerrors.ErrInvalidSteps},
		{"zero sims", SimulationParams{S0: 100, Steps: 10, Simulations: 0, Sigma: 0.2}, xerrors.ErrInvalidSimulations},
		{"zero sigma", SimulationParams{S0: 100, Steps: 10, Simulations: 10, Sigma: 0}, xerrors.ErrInvalidVolatility},
		{"negative dt", SimulationParams{S0: 100, Steps: 10, Simulations: 10, Sigma: 0.2, Dt: -1}, xerrors.ErrInvalidTimeStep},
	}
	for _, tc := range cases {
		if _, err := engine.Simulate(tc.params); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

// 均匀代理噪声下零漂移并非严格鞅：单步期望因子约为
// exp(-σ²dt/2)·sinh(σ√dt)/(σ√dt)，252 步后均值约为 98.7，
// 因此这里只断言 ±5% 的区间.
func TestSimulateOverflow(t *testing.T) {
	params := SimulationParams{S0: 100, Steps: 10, Simulations: 10, Mu: 1e300, Sigma: 0.2}
	if res, err := NewMonteCarloEngine(NewSource(1)).Simulate(params); !errors.Is(err, xerrors.ErrNumericOverflow) {
		t.Errorf("expected ErrNumericOverflow, got %+v, %v", res, err)
	}
	if _, err := NewParallelEngine(2, 3, 1).Simulate(context.Background(), params); !errors.Is(err, xerrors.ErrNumericOverflow) {
		t.Errorf("parallel: expected ErrNumericOverflow, got %v", err)
	}

	// 终值有限但平方和溢出.
	if _, err := summarizeFinite([]float64{-1e200, 1e200}); !errors.Is(err, xerrors.ErrNumericOverflow) {
		t.Errorf("std dev overflow: expected ErrNumericOverflow, got %v", err)
	}
}

func TestSimulateZeroDriftMean(t *testing.T) {
	engine := NewMonteCarloEngine(NewSource(2024))
	res, err := engine.Simulate(SimulationParams{S0: 100, Steps: 252, Simulations: 10000, Mu: 0, Sigma: 0.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mean < 95 || res.Mean > 105 {
		t.Errorf("mean %v outside [95, 105]", res.Mean)
	}
	if res.SampleCount != 10000 {
		t.Errorf("sample count = %d", res.SampleCount)
	}
	if !(res.Min <= res.P5 && res.P5 <= res.P95 && res.P95 <= res.Max) {
		t.Errorf("order violated: %+v", res)
	}
	if res.StdDev <= 0 {
		t.Errorf("std dev should be positive, got %v", res.StdDev)
	}
}

func TestSimulateDeterministic(t *testing.T) {
	params := SimulationParams{S0: 50, Steps: 30, Simulations: 500, Mu: 0.05, Sigma: 0.3}
	a, _ := NewMonteCarloEngine(NewSource(42)).Simulate(params)
	b, _ := NewMonteCarloEngine(NewSource(42)).Simulate(params)
	if *a != *b {
		t.Errorf("seeded runs differ: %+v vs %+v", a, b)
	}
}

func TestSummarize(t *testing.T) {
	res := Summarize([]float64{4, 1, 3, 2})
	if res.Mean != 2.5 {
		t.Errorf("mean = %v", res.Mean)
	}
	if math.Abs(res.StdDev-math.Sqrt(1.25)) > 1e-12 {
		t.Errorf("population std dev = %v", res.StdDev)
	}
	// floor(0.05*4)=0, floor(0.95*4)=3.
	if res.P5 != 1 || res.P95 != 4 {
		t.Errorf("percentiles = %v, %v", res.P5, res.P95)
	}
	if empty := Summarize(nil); empty.SampleCount != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestPercentileClamp(t *testing.T) {
	sorted := []float64{1, 2, 3}
	if got := Percentile(sorted, 1); got != 3 {
		t.Errorf("p=1 -> %v", got)
	}
	if got := Percentile(sorted, -0.5); got != 1 {
		t.Errorf("p<0 -> %v", got)
	}
	if !math.IsNaN(Percentile(nil, 0.5)) {
		t.Error("empty input should be NaN")
	}
}

func TestParallelEngineDeterministic(t *testing.T) {
	params := SimulationParams{S0: 100, Steps: 50, Simulations: 2500, Mu: 0.02, Sigma: 0.25}
	ctx := context.Background()

	single, err := NewParallelEngine(1, 300, 77).Simulate(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	multi, err := NewParallelEngine(8, 300, 77).Simulate(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *single != *multi {
		t.Errorf("results depend on worker count: %+v vs %+v", single, multi)
	}
	if multi.SampleCount != params.Simulations {
		t.Errorf("sample count = %d", multi.SampleCount)
	}
}

func TestParallelEngineCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParallelEngine(2, 10, 1).Simulate(ctx, SimulationParams{S0: 1, Steps: 10, Simulations: 100, Sigma: 0.1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
