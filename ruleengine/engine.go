// Package ruleengine 把 expr 表达式编译为路径提前终止条件.
package ruleengine

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/Buypolar-Capital/buypolarcapital/algorithm/sim"
	"github.com/Buypolar-Capital/buypolarcapital/xerrors"
)

// PathEnv 表达式可见的变量.
type PathEnv struct {
	Step    int     `expr:"step"`
	Value   float64 `expr:"value"`
	Start   float64 `expr:"start"`
	Floor   float64 `expr:"floor"`
	Ceiling float64 `expr:"ceiling"`
}

// Engine 缓存已编译的表达式，可并发使用.
type Engine struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func NewEngine() *Engine {
	return &Engine{
		programs: make(map[string]*vm.Program),
	}
}

// Compile 编译布尔表达式；同一文本只编译一次.
func (e *Engine) Compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(PathEnv{}), expr.AsBool())
	if err != nil {
		return nil, xerrors.ErrInvalidExpression.With("%q: %v", expression, err)
	}

	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}

// PathPredicate 生成供 sim.WithStopWhen 使用的终止条件.
// start/floor/ceiling 在整条路径上保持不变；运行期错误视为不终止.
func (e *Engine) PathPredicate(expression string, start, floor, ceiling float64) (sim.StopFunc, error) {
	program, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return func(step int, value float64) bool {
		out, err := expr.Run(program, PathEnv{
			Step:    step,
			Value:   value,
			Start:   start,
			Floor:   floor,
			Ceiling: ceiling,
		})
		if err != nil {
			return false
		}
		stop, _ := out.(bool)
		return stop
	}, nil
}

// Len 返回缓存的表达式数量.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}
