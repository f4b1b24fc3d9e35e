package ruleengine

import (
	"errors"
	"testing"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/sim"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

func TestPathPredicate(t *testing.T) {
	e := NewEngine()
	stop, err := e.PathPredicate("value <= floor || step >= 3", 10, 0, 20)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cases := []struct {
		step  int
		value float64
		want  bool
	}{
		{1, 5, false},
		{1, -0.5, true},
		{3, 5, true},
	}
	for _, tc := range cases {
		if got := stop(tc.step, tc.value); got != tc.want {
			t.Errorf("stop(%d, %v) = %v, want %v", tc.step, tc.value, got, tc.want)
		}
	}
}

func TestPathPredicateTruncatesPath(t *testing.T) {
	e := NewEngine()
	stop, err := e.PathPredicate("step == 10", 0, 0, 0)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	path, err := sim.GeneratePath(sim.NewSource(1), 50, 1, 0.01, 0, sim.WithStopWhen(stop))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(path) != 10 {
		t.Errorf("expected 10 points, got %d", len(path))
	}
}

func TestCompileErrors(t *testing.T) {
	e := NewEngine()
	for _, src := range []string{"value +", "value + 1", "unknown > 0"} {
		if _, err := e.Compile(src); !errors.Is(err, xerrors.ErrInvalidExpression) {
			t.Errorf("%q: expected ErrInvalidExpression, got %v", src, err)
		}
	}
	if e.Len() != 0 {
		t.Errorf("failed programs were cached")
	}
}

func TestCompileCaches(t *testing.T) {
	e := NewEngine()
	a, _ := e.Compile("value > ceiling")
	b, _ := e.Compile("value > ceiling")
	if a != b || e.Len() != 1 {
		t.Errorf("expected cached program, len=%d", e.Len())
	}
}
