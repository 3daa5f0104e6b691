package gen

import (
	"fmt"
	"strconv"

	"gosp/ast"
	"gosp/el"
	"gosp/trace"
)

func validateExpr(src string) error { return el.Validate(src) }

// attributeValue renders the expression that yields an attribute's value
// at render time, converted to the expected Go type where possible.
// owner positions any static error.
func (g *generator) attributeValue(owner ast.Node, a *ast.Attr, expected string, st state) string {
	switch a.Kind {
	case ast.AttrExpression:
		if st.scriptless {
			g.fail(staticErr(owner, "attribute %s: scripting expression not allowed here", a.Name))
			return ""
		}
		return "(" + a.Text + ")"

	case ast.AttrEL:
		if err := validateExpr(a.Text); err != nil {
			g.fail(wrapStatic(owner, fmt.Sprintf("attribute %s", a.Name), err))
			return ""
		}
		return el.InterpreterCall("_gosp_ctx", a.Text, expected)

	case ast.AttrNamed:
		tmp := g.namedAttributeValue(a.Named, st)
		if g.err != nil {
			return ""
		}
		cast, ok := castFromString(tmp, expected)
		if !ok {
			g.fail(staticErr(owner, "attribute %s: cannot convert body value to %s", a.Name, expected))
			return ""
		}
		return cast

	default:
		return g.literalValue(owner, a, expected)
	}
}

// deferredAttributeValue renders a deferred wrapper for a '#' expression
// attribute.
func (g *generator) deferredAttributeValue(owner ast.Node, a *ast.Attr, method bool) string {
	if a.Kind != ast.AttrEL {
		g.fail(staticErr(owner, "attribute %s: deferred attribute needs an expression value", a.Name))
		return ""
	}
	if err := validateExpr(a.Text); err != nil {
		g.fail(wrapStatic(owner, fmt.Sprintf("attribute %s", a.Name), err))
		return ""
	}
	return el.DeferredCall("_gosp_ctx", a.Text, method)
}

// literalValue converts a generation-time constant to a literal of the
// expected type. Unparseable values are static errors, caught now rather
// than at render time.
func (g *generator) literalValue(owner ast.Node, a *ast.Attr, expected string) string {
	text := a.Text
	switch expected {
	case "", "string", "any":
		return quote(text)
	case "int", "int64", "int32":
		if _, err := strconv.ParseInt(text, 10, 64); err != nil {
			g.fail(staticErr(owner, "attribute %s: %q is not an integer", a.Name, text))
			return ""
		}
		return text
	case "float64", "float32":
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			g.fail(staticErr(owner, "attribute %s: %q is not a number", a.Name, text))
			return ""
		}
		return text
	case "bool":
		v, err := strconv.ParseBool(text)
		if err != nil {
			g.fail(staticErr(owner, "attribute %s: %q is not a boolean", a.Name, text))
			return ""
		}
		return strconv.FormatBool(v)
	default:
		g.fail(staticErr(owner, "attribute %s: cannot convert literal %q to %s", a.Name, text, expected))
		return ""
	}
}

// castFromString adapts a string-valued temporary to the expected type at
// render time.
func castFromString(expr, expected string) (string, bool) {
	switch expected {
	case "", "string", "any":
		return expr, true
	case "int":
		return fmt.Sprintf("runtime.ToInt(%s)", expr), true
	case "int64":
		return fmt.Sprintf("runtime.ToInt64(%s)", expr), true
	case "float64":
		return fmt.Sprintf("runtime.ToFloat64(%s)", expr), true
	case "bool":
		return fmt.Sprintf("runtime.ToBool(%s)", expr), true
	default:
		return "", false
	}
}

// namedAttributeValue generates the code computing a body-supplied
// attribute value and returns the temporary holding it. A body that is a
// single piece of template text becomes a plain assignment; anything else
// renders through a pushed body buffer.
func (g *generator) namedAttributeValue(na *ast.NamedAttribute, st state) string {
	tmp := fmt.Sprintf("_gosp_val_%d", g.tmp())
	na.TempVar = tmp

	begin := g.out.Line()
	switch {
	case na.Body.Size() == 0:
		g.out.Printil(fmt.Sprintf("%s := \"\"", tmp))
	case na.Body.Size() == 1 && isTemplateText(na.Body.Nodes[0]):
		tt := na.Body.Nodes[0].(*ast.TemplateText)
		g.out.Printil(fmt.Sprintf("%s := %s", tmp, quote(tt.Text)))
	default:
		body := fmt.Sprintf("_gosp_body_%d", g.tmp())
		g.out.Printil(fmt.Sprintf("%s := _gosp_ctx.PushBody()", body))
		g.out.Printil(fmt.Sprintf("out = %s", body))
		g.visitList(na.Body, st)
		if g.err != nil {
			return ""
		}
		g.out.Printil(fmt.Sprintf("%s := %s.String()", tmp, body))
		g.out.Printil("out = _gosp_ctx.PopBody()")
	}
	na.SetGenBegin(begin)
	na.SetGenEnd(g.out.Line())
	return tmp
}

func isTemplateText(n ast.Node) bool {
	_, ok := n.(*ast.TemplateText)
	return ok
}

// fragmentAttributeValue generates a fragment helper method for a
// fragment-typed attribute body and returns the constructor expression.
func (g *generator) fragmentAttributeValue(na *ast.NamedAttribute, parent string, st state) string {
	return g.fragmentFor(na.Body.Nodes, parent)
}

// fragmentFor generates a helper method rendering the given nodes and
// returns the fragment constructor expression bound to parent.
func (g *generator) fragmentFor(nodes []ast.Node, parent string) string {
	m := g.helper.openFragment(nodes)
	if trace.IsEnabled() {
		trace.Fragment(m.id, fragmentPos(nodes))
	}
	prev := g.out
	g.out = m.buf.W
	g.visitList(&ast.NodeList{Nodes: nodes}, state{parent: "h.Parent", scriptless: true})
	g.helper.closeFragment(m)
	g.out = prev
	if g.err != nil {
		return ""
	}
	return g.helper.ctorCall(m.id, "_gosp_ctx", parent)
}

func fragmentPos(nodes []ast.Node) string {
	if len(nodes) == 0 {
		return "?"
	}
	return nodes[0].Position().String()
}
