package finance

import "math"

// Abramowitz-Stegun 7.1.26 系数，最大误差约 7.5e-8.
const (
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
	asP  = 0.3275911
)

// NormCDF 标准正态分布累积分布函数（有理逼近）.
func NormCDF(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	z := math.Abs(x) / math.Sqrt2
	t := 1.0 / (1.0 + asP*z)
	y := 1.0 - t*(asA1+t*(asA2+t*(asA3+t*(asA4+t*asA5))))*math.Exp(-z*z)
	return 0.5 * (1.0 + sign*y)
}

// NormPDF 标准正态分布概率密度函数.
func NormPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
