// Package finance - 期权定价（Black-Scholes）、凯利仓位与破产概率等金融公式。
package finance

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/types"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// OptionQuote 欧式期权报价.
type OptionQuote struct {
	CallPrice float64 `json:"call_price"`
	PutPrice  float64 `json:"put_price"`
	D1        float64 `json:"d1"`
	D2        float64 `json:"d2"`
}

// QuoteView 用于展示的定点报价.
type QuoteView struct {
	CallPrice decimal.Decimal `json:"call_price"`
	PutPrice  decimal.Decimal `json:"put_price"`
	D1        decimal.Decimal `json:"d1"`
	D2        decimal.Decimal `json:"d2"`
}

// Rounded 按 places 位小数四舍五入.
func (q *OptionQuote) Rounded(places int32) QuoteView {
	return QuoteView{
		CallPrice: decimal.NewFromFloat(q.CallPrice).Round(places),
		PutPrice:  decimal.NewFromFloat(q.PutPrice).Round(places),
		D1:        decimal.NewFromFloat(q.D1).Round(places),
		D2:        decimal.NewFromFloat(q.D2).Round(places),
	}
}

// BlackScholesCalculator Black-Scholes 期权定价计算器。
type BlackScholesCalculator struct{}

// NewBlackScholesCalculator 创建 Black-Scholes 计算器。
func NewBlackScholesCalculator() *BlackScholesCalculator {
	return &BlackScholesCalculator{}
}

func validateMarket(spot, strike, expiry, rate, vol float64) error {
	if !positiveFinite(spot) || !positiveFinite(strike) || !positiveFinite(expiry) || !positiveFinite(vol) || !finite(rate) {
		return xerrors.ErrInvalidMarketParams
	}
	return nil
}

// d1d2 在 vol*sqrt(T) 等中间量溢出时返回 ErrNumericOverflow.
func d1d2(spot, strike, expiry, rate, vol float64) (d1, d2 float64, err error) {
	sqrtT := math.Sqrt(expiry)
	d1 = (math.Log(spot/strike) + (rate+0.5*vol*vol)*expiry) / (vol * sqrtT)
	d2 = d1 - vol*sqrtT
	if !finite(d1) || !finite(d2) {
		return 0, 0, xerrors.ErrNumericOverflow.With("d1=%v d2=%v", d1, d2)
	}
	return d1, d2, nil
}

func allFinite(vals ...float64) bool {
	for _, v := range vals {
		if !finite(v) {
			return false
		}
	}
	return true
}

// Price 同时计算看涨与看跌价格。rate 可以为负。
// 价格下限钳制为 0，消除深度虚值时的舍入噪声.
func (bsc *BlackScholesCalculator) Price(spot, strike, expiry, rate, vol float64) (*OptionQuote, error) {
	if err := validateMarket(spot, strike, expiry, rate, vol); err != nil {
		return nil, err
	}
	d1, d2, err := d1d2(spot, strike, expiry, rate, vol)
	if err != nil {
		return nil, err
	}
	discK := strike * math.Exp(-rate*expiry)
	call := spot*NormCDF(d1) - discK*NormCDF(d2)
	put := discK*NormCDF(-d2) - spot*NormCDF(-d1)
	if !allFinite(call, put) {
		return nil, xerrors.ErrNumericOverflow.With("call=%v put=%v", call, put)
	}
	return &OptionQuote{
		CallPrice: math.Max(0, call),
		PutPrice:  math.Max(0, put),
		D1:        d1,
		D2:        d2,
	}, nil
}

// GreeksResult 包含期权价格及其希腊字母。
type GreeksResult struct {
	Price decimal.Decimal `json:"price"`
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Vega  decimal.Decimal `json:"vega"`  // 波动率变动 1% 的价格变化.
	Theta decimal.Decimal `json:"theta"` // 每日 theta。
	Rho   decimal.Decimal `json:"rho"`   // 利率变动 1% 的价格变化.
}

// Greeks 一次性计算期权价格及所有希腊字母。
func (bsc *BlackScholesCalculator) Greeks(optionType types.OptionType, spot, strike, expiry, rate, vol float64) (*GreeksResult, error) {
	if err := validateMarket(spot, strike, expiry, rate, vol); err != nil {
		return nil, err
	}
	if optionType != types.OptionTypeCall && optionType != types.OptionTypePut {
		return nil, xerrors.ErrInvalidOptionType
	}

	d1, d2, err := d1d2(spot, strike, expiry, rate, vol)
	if err != nil {
		return nil, err
	}
	sqrtT := math.Sqrt(expiry)
	expRT := math.Exp(-rate * expiry)
	phiD1 := NormPDF(d1)

	gamma := phiD1 / (spot * vol * sqrtT)
	vega := spot * phiD1 * sqrtT / 100
	var price, delta, theta, rho float64
	if optionType == types.OptionTypeCall {
		price = spot*NormCDF(d1) - strike*expRT*NormCDF(d2)
		delta = NormCDF(d1)
		theta = (-spot*phiD1*vol/(2*sqrtT) - rate*strike*expRT*NormCDF(d2)) / 365
		rho = strike * expiry * expRT * NormCDF(d2) / 100
	} else {
		price = strike*expRT*NormCDF(-d2) - spot*NormCDF(-d1)
		delta = NormCDF(d1) - 1
		theta = (-spot*phiD1*vol/(2*sqrtT) + rate*strike*expRT*NormCDF(-d2)) / 365
		rho = -strike * expiry * expRT * NormCDF(-d2) / 100
	}
	// decimal 无法表示 NaN/Inf.
	if !allFinite(price, delta, gamma, vega, theta, rho) {
		return nil, xerrors.ErrNumericOverflow.With("greeks overflow for %s", optionType)
	}
	return &GreeksResult{
		Price: decimal.NewFromFloat(math.Max(0, price)),
		Delta: decimal.NewFromFloat(delta),
		Gamma: decimal.NewFromFloat(gamma),
		Vega:  decimal.NewFromFloat(vega),
		Theta: decimal.NewFromFloat(theta),
		Rho:   decimal.NewFromFloat(rho),
	}, nil
}

// ImpliedVolatility 用牛顿法从市场价格反推波动率。
func (bsc *BlackScholesCalculator) ImpliedVolatility(optionType types.OptionType, spot, strike, expiry, rate, marketPrice float64) (float64, error) {
	if err := validateMarket(spot, strike, expiry, rate, 1); err != nil {
		return 0, err
	}
	if !positiveFinite(marketPrice) {
		return 0, xerrors.ErrInvalidInput
	}
	if optionType != types.OptionTypeCall && optionType != types.OptionTypePut {
		return 0, xerrors.ErrInvalidOptionType
	}

	const (
		tolerance     = 1e-6
		maxIterations = 100
	)
	sigma := 0.3
	for range maxIterations {
		q, err := bsc.Price(spot, strike, expiry, rate, sigma)
		if err != nil {
			break
		}
		price := q.CallPrice
		if optionType == types.OptionTypePut {
			price = q.PutPrice
		}
		diff := price - marketPrice
		if math.Abs(diff) < tolerance {
			return sigma, nil
		}
		vega := spot * NormPDF(q.D1) * math.Sqrt(expiry)
		if vega < 1e-12 {
			break
		}
		sigma -= diff / vega
		if sigma <= 0 {
			sigma = 0.001
		}
	}
	return 0, xerrors.ErrMathConvergence
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func positiveFinite(x float64) bool {
	return finite(x) && x > 0
}
