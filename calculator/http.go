package calculator

import (
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/finance"
	"github.com/Buypolar-Capital/buypolarcapital/algorithm/sim"
	"github.com/Buypolar-Capital/buypolarcapital/response"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// QuoteResponse 原始报价与四位小数的展示值.
type QuoteResponse struct {
	*finance.OptionQuote
	Display finance.QuoteView `json:"display"`
}

// KellyResponse 凯利结果，非有限的增长率以 null 表示.
type KellyResponse struct {
	Fraction      float64  `json:"fraction"`
	ExpectedValue float64  `json:"expected_value"`
	GrowthRate    *float64 `json:"growth_rate"`
}

// CurvePoint 增长曲线点，定义域外为 null.
type CurvePoint struct {
	Fraction   float64  `json:"fraction"`
	GrowthRate *float64 `json:"growth_rate"`
}

func finiteOrNil(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

// HandlerOption Handler 配置项.
type HandlerOption func(*Handler)

// WithRateLimit 为模拟类路由加限流中间件.
func WithRateLimit(mw gin.HandlerFunc) HandlerOption {
	return func(h *Handler) { h.rateLimit = mw }
}

// WithWebSocket 挂载任务状态推送端点.
func WithWebSocket(ws http.Handler) HandlerOption {
	return func(h *Handler) { h.ws = ws }
}

// WithMetricsHandler 挂载指标端点.
func WithMetricsHandler(path string, handler http.Handler) HandlerOption {
	return func(h *Handler) {
		h.metricsPath = path
		h.metrics = handler
	}
}

// WithHealthCheck 设置 /healthz 的就绪检查.
func WithHealthCheck(check func() error) HandlerOption {
	return func(h *Handler) { h.health = check }
}

// Handler 计算服务的 HTTP 入口.
type Handler struct {
	svc         *Service
	jobs        *JobQueue
	rateLimit   gin.HandlerFunc
	ws          http.Handler
	metrics     http.Handler
	metricsPath string
	health      func() error
	service     string
}

// NewHandler 创建 HTTP 处理器；jobs 为 nil 时不注册任务路由.
func NewHandler(service string, svc *Service, jobs *JobQueue, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, jobs: jobs, service: service, metricsPath: "/metrics"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 注册全部路由.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.healthz)
	if h.metrics != nil {
		r.GET(h.metricsPath, gin.WrapH(h.metrics))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/options/price", h.price)
	v1.POST("/options/greeks", h.greeks)
	v1.POST("/options/implied-vol", h.impliedVol)
	v1.POST("/kelly", h.kelly)
	v1.POST("/kelly/curve", h.kellyCurve)
	v1.POST("/risk/metrics", h.riskMetrics)

	simulation := v1.Group("")
	if h.rateLimit != nil {
		simulation.Use(h.rateLimit)
	}
	simulation.POST("/paths", h.paths)
	simulation.POST("/walks", h.walks)
	simulation.POST("/montecarlo", h.monteCarlo)
	simulation.POST("/ruin", h.ruin)
	simulation.POST("/ruin/trajectory", h.trajectory)

	if h.jobs != nil {
		simulation.POST("/jobs/montecarlo", h.submitMonteCarlo)
		simulation.POST("/jobs/ruin", h.submitRuin)
		v1.GET("/jobs/:id", h.getJob)
	}
	if h.ws != nil {
		v1.GET("/ws", gin.WrapH(h.ws))
	}
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.With("malformed request body: %v", err))
		return false
	}
	return true
}

func (h *Handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(); err != nil {
			response.ErrorWithStatus(c, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
	}
	response.SuccessWithRawData(c, gin.H{
		"status":    "UP",
		"service":   h.service,
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handler) price(c *gin.Context) {
	var req OptionRequest
	if !bind(c, &req) {
		return
	}
	quote, err := h.svc.PriceOption(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, QuoteResponse{OptionQuote: quote, Display: quote.Rounded(4)})
}

func (h *Handler) greeks(c *gin.Context) {
	var req GreeksRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.Greeks(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) impliedVol(c *gin.Context) {
	var req ImpliedVolRequest
	if !bind(c, &req) {
		return
	}
	vol, err := h.svc.ImpliedVolatility(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"implied_volatility": vol})
}

func (h *Handler) paths(c *gin.Context) {
	var req PathRequest
	if !bind(c, &req) {
		return
	}
	views, err := h.svc.GeneratePaths(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"paths": views})
}

func (h *Handler) walks(c *gin.Context) {
	var req WalkRequest
	if !bind(c, &req) {
		return
	}
	walks, err := h.svc.RandomWalks(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"walks": walks})
}

func (h *Handler) monteCarlo(c *gin.Context) {
	var params sim.SimulationParams
	if !bind(c, &params) {
		return
	}
	ctx := c.Request.Context()
	res, err := h.svc.SimulateAsync(ctx, params).Get(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) kelly(c *gin.Context) {
	var req KellyRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.Kelly(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, KellyResponse{
		Fraction:      res.Fraction,
		ExpectedValue: res.ExpectedValue,
		GrowthRate:    finiteOrNil(res.GrowthRate),
	})
}

func (h *Handler) kellyCurve(c *gin.Context) {
	var req KellyCurveRequest
	if !bind(c, &req) {
		return
	}
	points, err := h.svc.KellyCurve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]CurvePoint, len(points))
	for i, p := range points {
		out[i] = CurvePoint{Fraction: p.Fraction, GrowthRate: finiteOrNil(p.GrowthRate)}
	}
	response.Success(c, gin.H{"points": out})
}

func (h *Handler) ruin(c *gin.Context) {
	var params finance.RuinParams
	if !bind(c, &params) {
		return
	}
	res, err := h.svc.RiskOfRuin(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) trajectory(c *gin.Context) {
	var req TrajectoryRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.svc.BankrollTrajectory(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"bankroll": out})
}

func (h *Handler) riskMetrics(c *gin.Context) {
	var req RiskRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.RiskMetrics(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) submitMonteCarlo(c *gin.Context) {
	var params sim.SimulationParams
	if !bind(c, &params) {
		return
	}
	job, err := h.jobs.SubmitMonteCarlo(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusAccepted, job)
}

func (h *Handler) submitRuin(c *gin.Context) {
	var params finance.RuinParams
	if !bind(c, &params) {
		return
	}
	job, err := h.jobs.SubmitRuin(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusAccepted, job)
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}
