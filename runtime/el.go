package runtime

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"
)

// Expressions are compiled once per page process and cached by source
// text, mirroring how page sources reuse the same expression many times
// across requests.
var (
	exprMu    sync.RWMutex
	exprCache = make(map[string]*vm.Program)
)

func compiled(src string) *vm.Program {
	exprMu.RLock()
	p, ok := exprCache[src]
	exprMu.RUnlock()
	if ok {
		return p
	}
	p, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		panic(&ExprError{Src: src, Err: err})
	}
	exprMu.Lock()
	exprCache[src] = p
	exprMu.Unlock()
	return p
}

// ExprError reports an expression that failed to compile or evaluate.
type ExprError struct {
	Src string
	Err error
}

func (e *ExprError) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Src, e.Err)
}

func (e *ExprError) Unwrap() error { return e.Err }

func run(src string, env map[string]any) (any, error) {
	return expr.Run(compiled(src), env)
}

// EvalAny evaluates src against the page environment. Evaluation failures
// panic; the page's deferred recovery converts them to its error return.
func EvalAny(ctx *PageContext, src string) any {
	out, err := expr.Run(compiled(src), ctx.Env())
	if err != nil {
		panic(&ExprError{Src: src, Err: err})
	}
	return out
}

func EvalString(ctx *PageContext, src string) string {
	v := EvalAny(ctx, src)
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

func EvalInt(ctx *PageContext, src string) int {
	v, err := cast.ToIntE(EvalAny(ctx, src))
	return mustCast(src, v, err)
}

func EvalInt64(ctx *PageContext, src string) int64 {
	v, err := cast.ToInt64E(EvalAny(ctx, src))
	return mustCast(src, v, err)
}

func EvalFloat(ctx *PageContext, src string) float64 {
	v, err := cast.ToFloat64E(EvalAny(ctx, src))
	return mustCast(src, v, err)
}

func EvalBool(ctx *PageContext, src string) bool {
	v, err := cast.ToBoolE(EvalAny(ctx, src))
	return mustCast(src, v, err)
}

func mustCast[T any](src string, v T, err error) T {
	if err != nil {
		panic(&ExprError{Src: src, Err: err})
	}
	return v
}

// WriteEval evaluates src and writes the result to the active writer,
// writing nothing for nil.
func WriteEval(ctx *PageContext, src string) error {
	v := EvalAny(ctx, src)
	if v == nil {
		return nil
	}
	_, err := ctx.Out().WriteString(cast.ToString(v))
	return err
}
