package finance

import (
	"errors"
	"math"
	"testing"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/types"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

func TestNormCDF(t *testing.T) {
	cases := []struct {
		x, want float64
	}{
		{0, 0.5},
		{1.96, 0.9750021},
		{-1.96, 0.0249979},
		{1, 0.8413447},
	}
	for _, tc := range cases {
		if got := NormCDF(tc.x); math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("NormCDF(%v) = %v, want %v", tc.x, got, tc.want)
		}
	}
	for _, x := range []float64{0.1, 0.7, 2.3, 4} {
		if s := NormCDF(x) + NormCDF(-x); math.Abs(s-1) > 1e-15 {
			t.Errorf("NormCDF(%v)+NormCDF(-%v) = %v", x, x, s)
		}
	}
}

func TestBlackScholesPrice(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	q, err := bsc.Price(100, 100, 1, 0.05, 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(q.CallPrice-10.4506) > 1e-3 {
		t.Errorf("call = %v, want ~10.4506", q.CallPrice)
	}
	if math.Abs(q.PutPrice-5.5735) > 1e-3 {
		t.Errorf("put = %v, want ~5.5735", q.PutPrice)
	}
	if math.Abs(q.D2-(q.D1-0.2)) > 1e-12 {
		t.Errorf("d2 = %v, d1 = %v", q.D2, q.D1)
	}

	again, _ := bsc.Price(100, 100, 1, 0.05, 0.2)
	if *again != *q {
		t.Errorf("repeated pricing differs: %+v vs %+v", again, q)
	}

	view := q.Rounded(4)
	if view.CallPrice.String() != "10.4506" {
		t.Errorf("rounded call = %s", view.CallPrice)
	}
}

func TestPutCallParity(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	cases := [][5]float64{
		{100, 100, 1, 0.05, 0.2},
		{80, 120, 0.25, 0.01, 0.5},
		{150, 90, 3, -0.01, 0.15},
		{42, 40, 0.5, 0.1, 0.35},
	}
	for _, c := range cases {
		q, err := bsc.Price(c[0], c[1], c[2], c[3], c[4])
		if err != nil {
			t.Fatalf("%v: %v", c, err)
		}
		lhs := q.CallPrice - q.PutPrice
		rhs := c[0] - c[1]*math.Exp(-c[3]*c[2])
		if math.Abs(lhs-rhs) > 1e-6 {
			t.Errorf("%v: C-P = %v, S-Ke^-rT = %v", c, lhs, rhs)
		}
	}
}

func TestBlackScholesInvalid(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	cases := [][5]float64{
		{0, 100, 1, 0.05, 0.2},
		{100, -1, 1, 0.05, 0.2},
		{100, 100, 0, 0.05, 0.2},
		{100, 100, 1, 0.05, 0},
		{100, 100, 1, math.NaN(), 0.2},
		{math.Inf(1), 100, 1, 0.05, 0.2},
	}
	for _, c := range cases {
		if _, err := bsc.Price(c[0], c[1], c[2], c[3], c[4]); !errors.Is(err, xerrors.ErrInvalidMarketParams) {
			t.Errorf("%v: expected ErrInvalidMarketParams, got %v", c, err)
		}
	}
}

func TestBlackScholesOverflow(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	cases := []struct {
		name string
		in   [5]float64
	}{
		{"vol*sqrt(T) overflows", [5]float64{100, 100, 1e100, 0.05, 1e300}},
		{"discount factor overflows", [5]float64{100, 100, 1e300, -1, 0.2}},
	}
	for _, tc := range cases {
		c := tc.in
		if q, err := bsc.Price(c[0], c[1], c[2], c[3], c[4]); !errors.Is(err, xerrors.ErrNumericOverflow) {
			t.Errorf("%s: Price expected ErrNumericOverflow, got %+v, %v", tc.name, q, err)
		}
		for _, ot := range []types.OptionType{types.OptionTypeCall, types.OptionTypePut} {
			if _, err := bsc.Greeks(ot, c[0], c[1], c[2], c[3], c[4]); !errors.Is(err, xerrors.ErrNumericOverflow) {
				t.Errorf("%s: Greeks(%s) expected ErrNumericOverflow, got %v", tc.name, ot, err)
			}
		}
	}
	if !xerrors.IsType(xerrors.ErrNumericOverflow, xerrors.ErrDomain) {
		t.Errorf("overflow should be a domain error")
	}
}

func TestPriceNeverNegative(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	for spot := 50.0; spot <= 150; spot++ {
		for _, expiry := range []float64{0.01, 0.05, 0.1, 0.25, 0.5} {
			for _, vol := range []float64{0.05, 0.1, 0.2, 0.4} {
				q, err := bsc.Price(spot, 100, expiry, 0.05, vol)
				if err != nil {
					t.Fatalf("S=%v T=%v vol=%v: %v", spot, expiry, vol, err)
				}
				if q.CallPrice < 0 || q.PutPrice < 0 {
					t.Fatalf("S=%v T=%v vol=%v: negative quote %+v", spot, expiry, vol, q)
				}
				rhs := spot - 100*math.Exp(-0.05*expiry)
				if math.Abs(q.CallPrice-q.PutPrice-rhs) > 1e-6 {
					t.Fatalf("S=%v T=%v vol=%v: parity broken", spot, expiry, vol)
				}
			}
		}
	}
}

func TestGreeks(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	q, _ := bsc.Price(100, 100, 1, 0.05, 0.2)

	call, err := bsc.Greeks(types.OptionTypeCall, 100, 100, 1, 0.05, 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	put, err := bsc.Greeks(types.OptionTypePut, 100, 100, 1, 0.05, 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(call.Price.InexactFloat64()-q.CallPrice) > 1e-9 {
		t.Errorf("call price %s vs %v", call.Price, q.CallPrice)
	}
	if d := call.Delta.InexactFloat64(); d <= 0 || d >= 1 {
		t.Errorf("call delta = %v", d)
	}
	if d := put.Delta.InexactFloat64(); d >= 0 || d <= -1 {
		t.Errorf("put delta = %v", d)
	}
	if !call.Gamma.Equal(put.Gamma) || !call.Gamma.IsPositive() {
		t.Errorf("gamma call=%s put=%s", call.Gamma, put.Gamma)
	}
	if !call.Vega.IsPositive() {
		t.Errorf("vega = %s", call.Vega)
	}
	if !call.Theta.IsNegative() {
		t.Errorf("call theta = %s", call.Theta)
	}
	if !call.Rho.IsPositive() || !put.Rho.IsNegative() {
		t.Errorf("rho call=%s put=%s", call.Rho, put.Rho)
	}

	if _, err := bsc.Greeks("STRADDLE", 100, 100, 1, 0.05, 0.2); !errors.Is(err, xerrors.ErrInvalidOptionType) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
}

func TestImpliedVolatility(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	for _, vol := range []float64{0.1, 0.25, 0.6} {
		q, _ := bsc.Price(100, 110, 0.5, 0.03, vol)
		iv, err := bsc.ImpliedVolatility(types.OptionTypeCall, 100, 110, 0.5, 0.03, q.CallPrice)
		if err != nil {
			t.Fatalf("vol %v: %v", vol, err)
		}
		if math.Abs(iv-vol) > 1e-4 {
			t.Errorf("call iv = %v, want %v", iv, vol)
		}
		iv, err = bsc.ImpliedVolatility(types.OptionTypePut, 100, 110, 0.5, 0.03, q.PutPrice)
		if err != nil {
			t.Fatalf("vol %v: %v", vol, err)
		}
		if math.Abs(iv-vol) > 1e-4 {
			t.Errorf("put iv = %v, want %v", iv, vol)
		}
	}

	if _, err := bsc.ImpliedVolatility(types.OptionTypeCall, 100, 100, 1, 0.05, -1); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
