package gen

import (
	"fmt"

	"gosp/ast"
)

// StaticError is a generation-time failure attributable to a template
// construct: an unknown attribute, an invalid expression, a misused
// action. It carries the source position of the offending node.
type StaticError struct {
	Pos ast.Position
	Msg string
	Err error
}

func (e *StaticError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func (e *StaticError) Unwrap() error { return e.Err }

func staticErr(n ast.Node, format string, args ...any) *StaticError {
	return &StaticError{Pos: n.Position(), Msg: fmt.Sprintf(format, args...)}
}

func wrapStatic(n ast.Node, msg string, err error) *StaticError {
	return &StaticError{Pos: n.Position(), Msg: msg, Err: err}
}

// IntrospectionError is a generation-time failure reading a tag handler
// type's attribute setters. It names the handler so the report points at
// the library, not the page.
type IntrospectionError struct {
	Handler string
	Err     error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspecting %s: %v", e.Handler, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }
