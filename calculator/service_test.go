package calculator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/finance"
	"github.com/Buypolar-Capital/buypolarcapital/algorithm/sim"
	"github.com/Buypolar-Capital/buypolarcapital/cache"
	"github.com/Buypolar-Capital/buypolarcapital/config"
	"github.com/Buypolar-Capital/buypolarcapital/metrics"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.SimulationConfig {
	cfg := config.DefaultConfig().Simulation
	cfg.Seed = 42
	cfg.Workers = 2
	cfg.BatchSize = 100
	return cfg
}

func newTestCache(t *testing.T, name string, m *metrics.Metrics) *cache.BigCache {
	t.Helper()
	c, err := cache.NewBigCache(time.Minute, 8, cache.WithName(name), cache.WithShards(16), cache.WithMetrics(m))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestService(t *testing.T) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics("calculator-test")
	svc := NewService(testConfig(),
		WithMetrics(m),
		WithLogger(discardLogger()),
		WithQuoteCache(newTestCache(t, "quotes", m), time.Minute),
	)
	return svc, m
}

func TestPriceOptionCachesQuote(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()
	req := OptionRequest{Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.2}

	first, err := svc.PriceOption(ctx, req)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	second, err := svc.PriceOption(ctx, req)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if *first != *second {
		t.Errorf("cached quote differs: %+v vs %+v", first, second)
	}
	if math.Abs(first.CallPrice-10.4506) > 1e-3 {
		t.Errorf("call price = %v", first.CallPrice)
	}
	if got := testutil.ToFloat64(m.CacheRequests.WithLabelValues("quotes", "hit")); got != 1 {
		t.Errorf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(m.CalculationsTotal.WithLabelValues(CalcPrice, "success")); got != 2 {
		t.Errorf("price calculations = %v", got)
	}
}

func TestPriceOptionInvalid(t *testing.T) {
	svc, m := newTestService(t)
	_, err := svc.PriceOption(context.Background(), OptionRequest{Spot: -1, Strike: 100, Expiry: 1, Volatility: 0.2})
	if !errors.Is(err, xerrors.ErrInvalidMarketParams) {
		t.Fatalf("expected ErrInvalidMarketParams, got %v", err)
	}
	if got := testutil.ToFloat64(m.CalculationsTotal.WithLabelValues(CalcPrice, "error")); got != 1 {
		t.Errorf("error count = %v", got)
	}
}

func TestGreeksAndImpliedVol(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	greeks, err := svc.Greeks(ctx, GreeksRequest{
		OptionRequest: OptionRequest{Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.25},
		OptionType:    "call",
	})
	if err != nil {
		t.Fatalf("greeks: %v", err)
	}
	vol, err := svc.ImpliedVolatility(ctx, ImpliedVolRequest{
		Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05,
		MarketPrice: greeks.Price.InexactFloat64(), OptionType: "CALL",
	})
	if err != nil {
		t.Fatalf("implied vol: %v", err)
	}
	if math.Abs(vol-0.25) > 1e-4 {
		t.Errorf("implied vol = %v, want 0.25", vol)
	}

	if _, err := svc.Greeks(ctx, GreeksRequest{OptionType: "straddle"}); !errors.Is(err, xerrors.ErrInvalidOptionType) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
}

func TestGeneratePathsWithExpression(t *testing.T) {
	svc, m := newTestService(t)
	views, err := svc.GeneratePaths(context.Background(), PathRequest{
		Paths: 3, Steps: 100, Volatility: 1, Start: 10,
		StopWhen: "step >= 20",
	})
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("got %d paths", len(views))
	}
	for _, v := range views {
		if len(v.Points) != 20 || !v.Truncated {
			t.Errorf("expected truncation at step 20, got len=%d truncated=%v", len(v.Points), v.Truncated)
		}
		if v.Last != v.Points[len(v.Points)-1].Value {
			t.Errorf("last = %v", v.Last)
		}
	}
	if got := testutil.ToFloat64(m.SimulatedPaths.WithLabelValues(CalcPaths)); got != 3 {
		t.Errorf("simulated paths = %v", got)
	}
}

func TestGeneratePathsLimits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GeneratePaths(ctx, PathRequest{Paths: 1000, Steps: 10, Volatility: 1}); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for too many paths, got %v", err)
	}
	if _, err := svc.GeneratePaths(ctx, PathRequest{Paths: 1, Steps: 10, Volatility: 1, StopWhen: "value >"}); !errors.Is(err, xerrors.ErrInvalidExpression) {
		t.Errorf("expected ErrInvalidExpression, got %v", err)
	}
	if _, err := svc.GeneratePaths(ctx, PathRequest{Paths: 1, Steps: 10, Volatility: 1, Bounds: &Bounds{Min: 2, Max: 1}}); !errors.Is(err, xerrors.ErrInvalidBounds) {
		t.Errorf("expected ErrInvalidBounds, got %v", err)
	}
}

func TestGeneratePathsConfigBounds(t *testing.T) {
	cfg := testConfig()
	cfg.Bounds.Enabled = true
	cfg.Bounds.Min, cfg.Bounds.Max = -0.5, 0.5
	svc := NewService(cfg, WithLogger(discardLogger()))

	views, err := svc.GeneratePaths(context.Background(), PathRequest{Paths: 2, Steps: 2000, Volatility: 20})
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	for _, v := range views {
		for _, pt := range v.Points {
			if pt.Value < -0.5 || pt.Value > 0.5 {
				t.Fatalf("value %v escaped configured bounds", pt.Value)
			}
		}
	}
}

func TestSimulateDeterministicWithSeed(t *testing.T) {
	svc, m := newTestService(t)
	params := sim.SimulationParams{S0: 100, Steps: 20, Simulations: 500, Mu: 0.05, Sigma: 0.2}

	a, err := svc.Simulate(context.Background(), params)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	b, err := svc.SimulateAsync(context.Background(), params).Get(context.Background())
	if err != nil {
		t.Fatalf("simulate async: %v", err)
	}
	if *a != *b {
		t.Errorf("seeded runs differ: %+v vs %+v", a, b)
	}
	if got := testutil.ToFloat64(m.SimulatedPaths.WithLabelValues(CalcMonteCarlo)); got != 1000 {
		t.Errorf("simulated paths = %v", got)
	}

	if _, err := svc.Simulate(context.Background(), sim.SimulationParams{S0: 1, Steps: 1, Simulations: 10_000_000, Sigma: 1}); !errors.Is(err, xerrors.ErrInvalidSimulations) {
		t.Errorf("expected ErrInvalidSimulations, got %v", err)
	}
}

func TestKellyUsesConfiguredFormula(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	req := KellyRequest{WinProbability: 0.6, WinMultiple: 1, LossFraction: 0.5}

	scaled, err := svc.Kelly(ctx, req)
	if err != nil {
		t.Fatalf("kelly: %v", err)
	}
	// (0.6*1 - 0.4*0.5) / (1*0.5) = 0.8
	if math.Abs(scaled.Fraction-0.8) > 1e-12 {
		t.Errorf("scaled fraction = %v", scaled.Fraction)
	}

	cfg := svc.Config()
	cfg.KellyFormula = "classic"
	svc.UpdateConfig(cfg)
	classic, err := svc.Kelly(ctx, req)
	if err != nil {
		t.Fatalf("kelly: %v", err)
	}
	if math.Abs(classic.Fraction-0.4) > 1e-12 {
		t.Errorf("classic fraction = %v", classic.Fraction)
	}

	req.Formula = "half"
	if _, err := svc.Kelly(ctx, req); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestKellyCurveDefaultStep(t *testing.T) {
	svc, _ := newTestService(t)
	points, err := svc.KellyCurve(context.Background(), KellyCurveRequest{WinProbability: 0.55, WinMultiple: 1, LossFraction: 1})
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	if len(points) != 101 {
		t.Fatalf("expected 101 points, got %d", len(points))
	}
	if !math.IsInf(points[100].GrowthRate, -1) {
		t.Errorf("full stake with a=1 should be -Inf, got %v", points[100].GrowthRate)
	}
}

func TestRiskOfRuinDefaultsFromConfig(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.RiskOfRuin(context.Background(), finance.RuinParams{InitialBankroll: 10, BetSize: 1, WinRate: 0.5})
	if err != nil {
		t.Fatalf("ruin: %v", err)
	}
	if res.Trials != 1000 || res.UpperMultiple != 2 {
		t.Errorf("defaults not applied: %+v", res)
	}
	if math.Abs(res.AnalyticProbability-0.5) > 1e-12 {
		t.Errorf("analytic = %v", res.AnalyticProbability)
	}
	if math.Abs(res.RuinProbability-0.5) > 0.08 {
		t.Errorf("simulated ruin probability = %v", res.RuinProbability)
	}
}

func TestRiskOfRuinRejectsOversizedGame(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RiskOfRuin(context.Background(), finance.RuinParams{InitialBankroll: 1e6, BetSize: 1, WinRate: 0.5})
	if !errors.Is(err, xerrors.ErrInvalidBetSize) {
		t.Errorf("expected ErrInvalidBetSize, got %v", err)
	}
	_, err = svc.RiskOfRuin(context.Background(), finance.RuinParams{InitialBankroll: 10, BetSize: 1, WinRate: 0.5, Trials: 1_000_000})
	if !errors.Is(err, xerrors.ErrInvalidTrials) {
		t.Errorf("expected ErrInvalidTrials, got %v", err)
	}
}

func TestBankrollTrajectory(t *testing.T) {
	svc, _ := newTestService(t)
	out, err := svc.BankrollTrajectory(context.Background(), TrajectoryRequest{InitialBankroll: 10, BetSize: 1, WinRate: 0.5, Sessions: 50})
	if err != nil {
		t.Fatalf("trajectory: %v", err)
	}
	if len(out) != 51 || out[0] != 10 {
		t.Errorf("bad trajectory: len=%d first=%v", len(out), out[0])
	}
}

func TestRiskMetricsDefaultConfidence(t *testing.T) {
	svc, _ := newTestService(t)
	returns := make([]decimal.Decimal, 0, 20)
	for i := range 20 {
		returns = append(returns, decimal.NewFromFloat(float64(i-10)/100))
	}
	res, err := svc.RiskMetrics(context.Background(), RiskRequest{Returns: returns})
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if res.Confidence != 0.95 {
		t.Errorf("confidence = %v", res.Confidence)
	}
	// floor(0.05*20)=1 -> 第二小的收益 -0.09.
	if !res.VaR.Equal(decimal.NewFromFloat(0.09)) {
		t.Errorf("VaR = %s", res.VaR)
	}
	if _, err := svc.RiskMetrics(context.Background(), RiskRequest{}); !errors.Is(err, xerrors.ErrEmptyData) {
		t.Errorf("expected ErrEmptyData, got %v", err)
	}
}
