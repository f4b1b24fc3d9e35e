// Package calculator 把数值核心包装为带指标、日志、追踪与缓存的应用服务，
// 并提供异步任务队列与 HTTP 接口.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/finance"
	"github.com/Buypolar-Capital/buypolarcapital/algorithm/sim"
	"github.com/Buypolar-Capital/buypolarcapital/algorithm/types"
	"github.com/Buypolar-Capital/buypolarcapital/async"
	"github.com/Buypolar-Capital/buypolarcapital/cache"
	"github.com/Buypolar-Capital/buypolarcapital/config"
	"github.com/Buypolar-Capital/buypolarcapital/metrics"
	"github.com/Buypolar-Capital/buypolarcapital/ruleengine"
	"github.com/Buypolar-Capital/buypolarcapital/tracing"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// 计算器名称，用作指标标签与 Span 名.
const (
	CalcPrice      = "bs_price"
	CalcGreeks     = "bs_greeks"
	CalcImpliedVol = "implied_vol"
	CalcPaths      = "paths"
	CalcWalks      = "random_walks"
	CalcMonteCarlo = "montecarlo"
	CalcKelly      = "kelly"
	CalcKellyCurve = "kelly_curve"
	CalcRuin       = "risk_of_ruin"
	CalcTrajectory = "bankroll_trajectory"
	CalcRisk       = "risk_metrics"
)

// OptionRequest Black-Scholes 的五个输入.
type OptionRequest struct {
	Spot       float64 `json:"spot"`
	Strike     float64 `json:"strike"`
	Expiry     float64 `json:"expiry"`
	Rate       float64 `json:"rate"`
	Volatility float64 `json:"volatility"`
}

func (r OptionRequest) cacheKey() string {
	return fmt.Sprintf("bs:%g:%g:%g:%g:%g", r.Spot, r.Strike, r.Expiry, r.Rate, r.Volatility)
}

// GreeksRequest 希腊字母请求.
type GreeksRequest struct {
	OptionRequest
	OptionType string `json:"option_type"`
}

// ImpliedVolRequest 隐含波动率请求.
type ImpliedVolRequest struct {
	Spot        float64 `json:"spot"`
	Strike      float64 `json:"strike"`
	Expiry      float64 `json:"expiry"`
	Rate        float64 `json:"rate"`
	MarketPrice float64 `json:"market_price"`
	OptionType  string  `json:"option_type"`
}

// Bounds 路径取值区间.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PathRequest 批量路径生成请求.
type PathRequest struct {
	Paths      int     `json:"paths"`
	Steps      int     `json:"steps"`
	Volatility float64 `json:"volatility"`
	Dt         float64 `json:"dt"` // 0 表示使用配置中的 dt.
	Start      float64 `json:"start"`
	InvertSign bool    `json:"invert_sign"`
	Bounds     *Bounds `json:"bounds,omitempty"`
	// StopWhen 提前终止表达式，可用变量 step/value/start/floor/ceiling.
	StopWhen string  `json:"stop_when,omitempty"`
	Floor    float64 `json:"floor"`
	Ceiling  float64 `json:"ceiling"`
}

// PathView 单条路径及其摘要.
type PathView struct {
	Points    sim.Path  `json:"points"`
	Last      float64   `json:"last"`
	Trend     sim.Trend `json:"trend"`
	Truncated bool      `json:"truncated"`
}

// WalkRequest 简单随机游走请求.
type WalkRequest struct {
	Walks int `json:"walks"`
	Steps int `json:"steps"`
}

// KellyRequest 凯利仓位请求；Formula 为空时使用配置.
type KellyRequest struct {
	WinProbability float64 `json:"win_probability"`
	WinMultiple    float64 `json:"win_multiple"`
	LossFraction   float64 `json:"loss_fraction"`
	Formula        string  `json:"formula,omitempty"`
}

// KellyCurveRequest 增长率曲线请求.
type KellyCurveRequest struct {
	WinProbability float64 `json:"win_probability"`
	WinMultiple    float64 `json:"win_multiple"`
	LossFraction   float64 `json:"loss_fraction"`
	Step           float64 `json:"step"`
}

// RuinResult 模拟估计与同离散化的闭式解.
type RuinResult struct {
	finance.RuinEstimate
	AnalyticProbability float64 `json:"analytic_probability"`
	UpperMultiple       float64 `json:"upper_multiple"`
}

// TrajectoryRequest 单条资金曲线请求.
type TrajectoryRequest struct {
	InitialBankroll float64 `json:"initial_bankroll"`
	BetSize         float64 `json:"bet_size"`
	WinRate         float64 `json:"win_rate"`
	Sessions        int     `json:"sessions"`
}

// RiskRequest 收益率序列风险指标请求.
type RiskRequest struct {
	Returns      []decimal.Decimal `json:"returns"`
	Confidence   float64           `json:"confidence"`
	RiskFreeRate decimal.Decimal   `json:"risk_free_rate"`
}

// Option Service 配置项.
type Option func(*Service)

// WithQuoteCache 启用报价缓存.
func WithQuoteCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.quotes = c
		s.quoteTTL = ttl
	}
}

// WithMetrics 注入指标.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger 注入日志.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRuleEngine 替换表达式引擎.
func WithRuleEngine(e *ruleengine.Engine) Option {
	return func(s *Service) { s.rules = e }
}

// Service 计算服务，可并发使用.
type Service struct {
	mu  sync.RWMutex
	cfg config.SimulationConfig

	bs       *finance.BlackScholesCalculator
	risk     *finance.RiskCalculator
	rules    *ruleengine.Engine
	quotes   cache.Cache
	quoteTTL time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService 创建计算服务.
func NewService(cfg config.SimulationConfig, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		bs:     finance.NewBlackScholesCalculator(),
		risk:   finance.NewRiskCalculator(),
		rules:  ruleengine.NewEngine(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "calculator")
	return s
}

// UpdateConfig 热更新模拟参数.
func (s *Service) UpdateConfig(cfg config.SimulationConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Info("simulation config updated", "kelly_formula", cfg.KellyFormula, "ruin_upper_multiple", cfg.RuinUpperMultiple)
}

// Config 当前模拟参数快照.
func (s *Service) Config() config.SimulationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) source(cfg config.SimulationConfig) sim.Source {
	if cfg.Seed != 0 {
		return sim.NewSource(cfg.Seed)
	}
	return sim.NewCryptoSource()
}

func (s *Service) seed(cfg config.SimulationConfig) uint64 {
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return sim.NewCryptoSource().Uint64()
}

// track 开启 Span，返回的函数记录耗时、结果与失败日志.
func (s *Service) track(ctx context.Context, calculator string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "calculator."+calculator)
	return ctx, func(err error) {
		defer span.End()
		s.metrics.ObserveCalculation(calculator, start, err)
		if err == nil {
			return
		}
		tracing.SetError(ctx, err)
		level := slog.LevelError
		if xerrors.IsType(err, xerrors.ErrInvalidArg) || xerrors.IsType(err, xerrors.ErrDomain) || errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "calculation failed", "calculator", calculator, "error", err, "duration", time.Since(start))
	}
}

// PriceOption Black-Scholes 看涨/看跌价格，启用缓存时按五个输入缓存.
func (s *Service) PriceOption(ctx context.Context, req OptionRequest) (quote *finance.OptionQuote, err error) {
	ctx, done := s.track(ctx, CalcPrice)
	defer func() { done(err) }()

	key := req.cacheKey()
	if s.quotes != nil {
		var cached finance.OptionQuote
		if err := s.quotes.Get(ctx, key, &cached); err == nil {
			tracing.AddTag(ctx, "cache_hit", true)
			return &cached, nil
		}
	}

	quote, err = s.bs.Price(req.Spot, req.Strike, req.Expiry, req.Rate, req.Volatility)
	if err != nil {
		return nil, err
	}
	if s.quotes != nil {
		if err := s.quotes.Set(ctx, key, quote, s.quoteTTL); err != nil {
			s.logger.WarnContext(ctx, "failed to cache quote", "key", key, "error", err)
		}
	}
	return quote, nil
}

func parseOptionType(raw string) (types.OptionType, error) {
	ot, ok := types.ParseOptionType(raw)
	if !ok {
		return "", xerrors.ErrInvalidOptionType.With("got %q", raw)
	}
	return ot, nil
}

// Greeks 价格与全部希腊字母.
func (s *Service) Greeks(ctx context.Context, req GreeksRequest) (res *finance.GreeksResult, err error) {
	_, done := s.track(ctx, CalcGreeks)
	defer func() { done(err) }()

	ot, err := parseOptionType(req.OptionType)
	if err != nil {
		return nil, err
	}
	return s.bs.Greeks(ot, req.Spot, req.Strike, req.Expiry, req.Rate, req.Volatility)
}

// ImpliedVolatility 由市场价反推波动率.
func (s *Service) ImpliedVolatility(ctx context.Context, req ImpliedVolRequest) (vol float64, err error) {
	_, done := s.track(ctx, CalcImpliedVol)
	defer func() { done(err) }()

	ot, err := parseOptionType(req.OptionType)
	if err != nil {
		return 0, err
	}
	return s.bs.ImpliedVolatility(ot, req.Spot, req.Strike, req.Expiry, req.Rate, req.MarketPrice)
}

// GeneratePaths 生成多条独立路径；未指定区间时使用配置中的默认区间.
func (s *Service) GeneratePaths(ctx context.Context, req PathRequest) (views []PathView, err error) {
	ctx, done := s.track(ctx, CalcPaths)
	defer func() { done(err) }()

	cfg := s.Config()
	if req.Paths <= 0 || req.Paths > cfg.MaxPaths {
		return nil, xerrors.ErrInvalidInput.With("paths must be in [1, %d]", cfg.MaxPaths)
	}
	if req.Steps > cfg.MaxSteps {
		return nil, xerrors.ErrInvalidSteps.With("steps must not exceed %d", cfg.MaxSteps)
	}
	if req.Dt == 0 {
		req.Dt = cfg.Dt
	}

	var opts []sim.PathOption
	switch {
	case req.Bounds != nil:
		opts = append(opts, sim.WithBounds(req.Bounds.Min, req.Bounds.Max))
	case cfg.Bounds.Enabled:
		opts = append(opts, sim.WithBounds(cfg.Bounds.Min, cfg.Bounds.Max))
	}
	if req.InvertSign {
		opts = append(opts, sim.WithInvertSign())
	}
	if req.StopWhen != "" {
		stop, err := s.rules.PathPredicate(req.StopWhen, req.Start, req.Floor, req.Ceiling)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sim.WithStopWhen(stop))
	}

	src := s.source(cfg)
	views = make([]PathView, 0, req.Paths)
	for range req.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := sim.GeneratePath(src, req.Steps, req.Volatility, req.Dt, req.Start, opts...)
		if err != nil {
			return nil, err
		}
		views = append(views, PathView{
			Points:    path,
			Last:      path.Last().Value,
			Trend:     path.Trend(),
			Truncated: path.Truncated(req.Steps),
		})
	}
	s.metrics.AddSimulatedPaths(CalcPaths, req.Paths)
	return views, nil
}

// RandomWalks 生成 ±1 简单随机游走.
func (s *Service) RandomWalks(ctx context.Context, req WalkRequest) (walks [][]int, err error) {
	_, done := s.track(ctx, CalcWalks)
	defer func() { done(err) }()

	cfg := s.Config()
	if req.Walks > cfg.MaxPaths {
		return nil, xerrors.ErrInvalidSimulations.With("walks must not exceed %d", cfg.MaxPaths)
	}
	if req.Steps > cfg.MaxSteps {
		return nil, xerrors.ErrInvalidSteps.With("steps must not exceed %d", cfg.MaxSteps)
	}
	walks, err = sim.SimpleRandomWalks(s.source(cfg), req.Walks, req.Steps)
	if err != nil {
		return nil, err
	}
	s.metrics.AddSimulatedPaths(CalcWalks, req.Walks)
	return walks, nil
}

func (s *Service) checkSimulation(cfg config.SimulationConfig, params *sim.SimulationParams) error {
	if params.Dt == 0 {
		params.Dt = cfg.Dt
	}
	if params.Simulations > cfg.MaxSimulations {
		return xerrors.ErrInvalidSimulations.With("simulations must not exceed %d", cfg.MaxSimulations)
	}
	if params.Steps > cfg.MaxSteps {
		return xerrors.ErrInvalidSteps.With("steps must not exceed %d", cfg.MaxSteps)
	}
	return nil
}

// Simulate 并行蒙特卡洛模拟终值分布.
func (s *Service) Simulate(ctx context.Context, params sim.SimulationParams) (res *sim.SimulationResult, err error) {
	ctx, done := s.track(ctx, CalcMonteCarlo)
	defer func() { done(err) }()

	cfg := s.Config()
	if err := s.checkSimulation(cfg, &params); err != nil {
		return nil, err
	}
	tracing.AddTag(ctx, "simulations", params.Simulations)
	tracing.AddTag(ctx, "steps", params.Steps)

	engine := sim.NewParallelEngine(cfg.Workers, cfg.BatchSize, s.seed(cfg))
	res, err = engine.Simulate(ctx, params)
	if err != nil {
		return nil, err
	}
	s.metrics.AddSimulatedPaths(CalcMonteCarlo, params.Simulations)
	return res, nil
}

// SimulateAsync 在后台运行 Simulate.
func (s *Service) SimulateAsync(ctx context.Context, params sim.SimulationParams) *async.Future[*sim.SimulationResult] {
	return async.NewFuture(ctx, func(ctx context.Context) (*sim.SimulationResult, error) {
		return s.Simulate(ctx, params)
	})
}

func (s *Service) kellyFormula(raw string) (types.KellyFormula, error) {
	if raw == "" {
		raw = s.Config().KellyFormula
	}
	switch f := types.KellyFormula(raw); f {
	case types.KellyScaled, types.KellyClassic:
		return f, nil
	default:
		return "", xerrors.ErrInvalidInput.With("unknown kelly formula %q", raw)
	}
}

// Kelly 凯利仓位.
func (s *Service) Kelly(ctx context.Context, req KellyRequest) (res *finance.KellyResult, err error) {
	_, done := s.track(ctx, CalcKelly)
	defer func() { done(err) }()

	formula, err := s.kellyFormula(req.Formula)
	if err != nil {
		return nil, err
	}
	return finance.KellyWith(formula, req.WinProbability, req.WinMultiple, req.LossFraction)
}

// KellyCurve f ∈ [0,1] 的期望对数增长曲线.
func (s *Service) KellyCurve(ctx context.Context, req KellyCurveRequest) (points []finance.GrowthPoint, err error) {
	_, done := s.track(ctx, CalcKellyCurve)
	defer func() { done(err) }()

	if req.Step == 0 {
		req.Step = 0.01
	}
	return finance.GrowthCurve(req.WinProbability, req.WinMultiple, req.LossFraction, req.Step)
}

// prepareRuin 填充缺省值并校验上限.
func (s *Service) prepareRuin(cfg config.SimulationConfig, params *finance.RuinParams) error {
	if params.Trials == 0 {
		params.Trials = cfg.RuinTrials
	}
	if params.UpperMultiple == 0 {
		params.UpperMultiple = cfg.RuinUpperMultiple
	}
	if params.Trials > cfg.MaxRuinTrials {
		return xerrors.ErrInvalidTrials.With("trials must not exceed %d", cfg.MaxRuinTrials)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	// 公平博弈的期望吸收时间约为 down*up 注，超过上限的请求直接拒绝.
	down := math.Ceil(params.InitialBankroll / params.BetSize)
	up := math.Ceil((params.UpperMultiple - 1) * params.InitialBankroll / params.BetSize)
	if down*up > float64(cfg.MaxSteps) {
		return xerrors.ErrInvalidBetSize.With("bankroll/bet ratio too large: %.0f x %.0f units exceeds %d", down, up, cfg.MaxSteps)
	}
	return nil
}

// RiskOfRuin 模拟破产概率并附带闭式解；trials 与上界缺省取配置.
func (s *Service) RiskOfRuin(ctx context.Context, params finance.RuinParams) (res *RuinResult, err error) {
	ctx, done := s.track(ctx, CalcRuin)
	defer func() { done(err) }()

	cfg := s.Config()
	if err := s.prepareRuin(cfg, &params); err != nil {
		return nil, err
	}

	estimate, err := finance.RiskOfRuin(s.source(cfg), params)
	if err != nil {
		return nil, err
	}
	analytic, err := finance.GamblersRuin(params)
	if err != nil {
		return nil, err
	}
	tracing.AddTag(ctx, "trials", params.Trials)
	s.metrics.AddSimulatedPaths(CalcRuin, params.Trials)
	return &RuinResult{
		RuinEstimate:        *estimate,
		AnalyticProbability: analytic,
		UpperMultiple:       params.UpperMultiple,
	}, nil
}

// BankrollTrajectory 单条资金曲线.
func (s *Service) BankrollTrajectory(ctx context.Context, req TrajectoryRequest) (out []float64, err error) {
	_, done := s.track(ctx, CalcTrajectory)
	defer func() { done(err) }()

	cfg := s.Config()
	if req.Sessions > cfg.MaxSteps {
		return nil, xerrors.ErrInvalidSteps.With("sessions must not exceed %d", cfg.MaxSteps)
	}
	return finance.BankrollTrajectory(s.source(cfg), req.InitialBankroll, req.BetSize, req.WinRate, req.Sessions)
}

// RiskMetrics VaR、ES、最大回撤与夏普比率.
func (s *Service) RiskMetrics(ctx context.Context, req RiskRequest) (res *finance.RiskMetrics, err error) {
	_, done := s.track(ctx, CalcRisk)
	defer func() { done(err) }()

	if req.Confidence == 0 {
		req.Confidence = 0.95
	}
	return s.risk.Evaluate(req.Returns, req.Confidence, req.RiskFreeRate)
}
