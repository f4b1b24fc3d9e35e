package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

func TestGeneratePathInvalidArgs(t *testing.T) {
	src := NewSource(1)
	cases := []struct {
		name  string
		steps int
		vol   float64
		dt    float64
		want  error
	}{
		{"zero steps", 0, 1, 0.01, xerrors.ErrInvalidSteps},
		{"negative steps", -3, 1, 0.01, xerrors.ErrInvalidSteps},
		{"zero dt", 10, 1, 0, xerrors.ErrInvalidTimeStep},
		{"nan dt", 10, 1, math.NaN(), xerrors.ErrInvalidTimeStep},
		{"zero vol", 10, 0, 0.01, xerrors.ErrInvalidVolatility},
	}
	for _, tc := range cases {
		_, err := GeneratePath(src, tc.steps, tc.vol, tc.dt, 0)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if !xerrors.IsType(err, xerrors.ErrInvalidArg) {
			t.Errorf("%s: expected InvalidArg type, got %v", tc.name, err)
		}
	}

	_, err := GeneratePath(src, 10, 1, 0.01, 0, WithBounds(5, 1))
	if !errors.Is(err, xerrors.ErrInvalidBounds) {
		t.Errorf("expected ErrInvalidBounds, got %v", err)
	}
}

func TestGeneratePathShape(t *testing.T) {
	const steps = 200
	const vol, dt, start = 3.0, 0.01, 50.0

	path, err := GeneratePath(NewSource(7), steps, vol, dt, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != steps+1 {
		t.Fatalf("expected %d points, got %d", steps+1, len(path))
	}
	if path[0].Value != start || path[0].Step != 0 {
		t.Errorf("first point = %+v, want step 0 value %v", path[0], start)
	}

	maxStep := vol * math.Sqrt(dt)
	for i := 1; i < len(path); i++ {
		if path[i].Step != i {
			t.Fatalf("point %d has step %d", i, path[i].Step)
		}
		if d := math.Abs(path[i].Value - path[i-1].Value); d > maxStep+1e-12 {
			t.Errorf("increment %v at step %d exceeds %v", d, i, maxStep)
		}
	}
	if path.Truncated(steps) {
		t.Error("untruncated path reported as truncated")
	}
}

func TestGeneratePathDeterministic(t *testing.T) {
	a, _ := GeneratePath(NewSource(99), 100, 1, 0.01, 0)
	b, _ := GeneratePath(NewSource(99), 100, 1, 0.01, 0)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("paths diverge at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestGeneratePathInvertSign(t *testing.T) {
	const start = 10.0
	up, _ := GeneratePath(NewSource(5), 50, 2, 0.01, start)
	down, _ := GeneratePath(NewSource(5), 50, 2, 0.01, start, WithInvertSign())
	for i := range up {
		if math.Abs((up[i].Value-start)+(down[i].Value-start)) > 1e-9 {
			t.Fatalf("step %d is not mirrored: %v vs %v", i, up[i].Value, down[i].Value)
		}
	}
}

func TestGeneratePathBounds(t *testing.T) {
	path, err := GeneratePath(NewSource(3), 5000, 50, 0.01, 0, WithBounds(-1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, pt := range path {
		if pt.Value < -1 || pt.Value > 1 {
			t.Fatalf("value %v escaped bounds at step %d", pt.Value, pt.Step)
		}
	}
}

func TestGeneratePathStopWhen(t *testing.T) {
	path, err := GeneratePath(NewSource(11), 100, 1, 0.01, 0, WithStopWhen(func(step int, _ float64) bool {
		return step == 5
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != 5 {
		t.Fatalf("expected truncation to 5 points, got %d", len(path))
	}
	if !path.Truncated(100) {
		t.Error("expected truncated path")
	}

	// 触底即终止：起点贴近下界、波动很大时必然很快触发.
	bust, _ := GeneratePath(NewSource(12), 10000, 100, 0.01, 0.1, WithStopWhen(func(_ int, v float64) bool {
		return v <= 0
	}))
	for _, pt := range bust {
		if pt.Value <= 0 {
			t.Fatalf("bust point %v was appended", pt)
		}
	}
	if !bust.Truncated(10000) {
		t.Error("expected bust to truncate the path")
	}
}

// constSource 每次返回同一个值.
type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

func TestGeneratePathOverflow(t *testing.T) {
	_, err := GeneratePath(constSource(0.99), 10, math.MaxFloat64, 1, math.MaxFloat64)
	if !errors.Is(err, xerrors.ErrNumericOverflow) {
		t.Errorf("expected ErrNumericOverflow, got %v", err)
	}
}

func TestPathTrend(t *testing.T) {
	cases := []struct {
		path Path
		want Trend
	}{
		{Path{{0, 1}, {1, 2}}, TrendUp},
		{Path{{0, 1}, {1, 0}}, TrendDown},
		{Path{{0, 1}, {1, 1}}, TrendFlat},
		{Path{{0, 1}}, TrendFlat},
	}
	for _, tc := range cases {
		if got := tc.path.Trend(); got != tc.want {
			t.Errorf("Trend(%v) = %s, want %s", tc.path, got, tc.want)
		}
	}
}

func TestSimpleRandomWalk(t *testing.T) {
	walks, err := SimpleRandomWalks(NewSource(8), 10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(walks) != 10 {
		t.Fatalf("expected 10 walks, got %d", len(walks))
	}
	for _, w := range walks {
		if len(w) != 101 || w[0] != 0 {
			t.Fatalf("bad walk shape: len=%d start=%d", len(w), w[0])
		}
		for i := 1; i < len(w); i++ {
			if d := w[i] - w[i-1]; d != 1 && d != -1 {
				t.Fatalf("step %d has increment %d", i, d)
			}
		}
	}

	if _, err := SimpleRandomWalk(NewSource(8), 0); !errors.Is(err, xerrors.ErrInvalidSteps) {
		t.Errorf("expected ErrInvalidSteps, got %v", err)
	}
}
