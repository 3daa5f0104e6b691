// Package el handles expression attributes at generation time: extracting
// expression text from its delimiters, validating it, and emitting the
// runtime call that evaluates it.
package el

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// Kind distinguishes immediate expressions from deferred ones.
type Kind byte

const (
	Immediate Kind = '$' // evaluated while the page renders
	Deferred  Kind = '#' // handed to the tag as a deferred value
)

// IsExpression reports whether text is entirely a single expression,
// ${...} or #{...}.
func IsExpression(text string) bool {
	if len(text) < 4 {
		return false
	}
	if text[0] != '$' && text[0] != '#' {
		return false
	}
	return text[1] == '{' && strings.HasSuffix(text, "}") &&
		!strings.Contains(text[2:len(text)-1], "}")
}

// Strip removes the delimiters from a single expression.
func Strip(text string) string {
	return text[2 : len(text)-1]
}

// Validate compiles src and reports the first static error, if any.
func Validate(src string) error {
	_, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return fmt.Errorf("invalid expression %q: %w", src, err)
	}
	return nil
}

// evaluator helpers by expected result type; anything unlisted evaluates
// as any and is cast at the call site.
var evalFuncs = map[string]string{
	"string":  "EvalString",
	"int":     "EvalInt",
	"int64":   "EvalInt64",
	"float64": "EvalFloat",
	"bool":    "EvalBool",
}

// InterpreterCall renders the runtime evaluation call for src with the
// given expected type. ctxVar names the page context variable in the
// generated scope.
func InterpreterCall(ctxVar, src, expectedType string) string {
	if fn, ok := evalFuncs[expectedType]; ok {
		return fmt.Sprintf("runtime.%s(%s, %s)", fn, ctxVar, Quote(src))
	}
	call := fmt.Sprintf("runtime.EvalAny(%s, %s)", ctxVar, Quote(src))
	if expectedType != "" && expectedType != "any" {
		return fmt.Sprintf("%s.(%s)", call, expectedType)
	}
	return call
}

// DeferredCall renders the construction of a deferred value or method
// wrapper for src.
func DeferredCall(ctxVar, src string, method bool) string {
	ctor := "NewDeferredValue"
	if method {
		ctor = "NewDeferredMethod"
	}
	return fmt.Sprintf("runtime.%s(%s, %s)", ctor, ctxVar, Quote(src))
}

// Quote renders s as a Go string literal suitable for generated source.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
