package gen

import (
	"fmt"

	"gosp/ast"
)

// fragmentHelper accumulates the deferred-body methods of one page. Each
// fragment is a numbered method generated into its own buffer while the
// traversal is elsewhere; the postamble splices the methods into the file
// and writes the dispatch that routes Invoke calls to them.
type fragmentHelper struct {
	typeName string
	pageType string
	methods  []*fragmentMethod
}

type fragmentMethod struct {
	id  int
	buf *Buffer
}

func newFragmentHelper(pageType string) *fragmentHelper {
	return &fragmentHelper{
		typeName: pageType + "Helper",
		pageType: pageType,
	}
}

func (f *fragmentHelper) used() bool { return len(f.methods) > 0 }

// ctorCall renders the construction of a fragment value bound to the given
// method id and parent handler.
func (f *fragmentHelper) ctorCall(id int, ctxVar, parent string) string {
	return fmt.Sprintf("new%s(p, %d, %s, %s)", exportName(f.typeName), id, ctxVar, parent)
}

// openFragment starts a new fragment method owning the given body nodes.
// The returned method's buffer becomes the active writer until
// closeFragment.
func (f *fragmentHelper) openFragment(body []ast.Node) *fragmentMethod {
	m := &fragmentMethod{id: len(f.methods), buf: NewBuffer(body)}
	f.methods = append(f.methods, m)

	w := m.buf.W
	w.Printil(fmt.Sprintf("func (h *%s) invoke%d(out runtime.Writer) (_gosp_oc runtime.Outcome, _gosp_err error) {", f.typeName, m.id))
	w.PushIndent()
	w.Printil("p, _gosp_ctx := h.page, h.Ctx")
	w.Printil("_, _, _ = p, _gosp_ctx, out")
	return m
}

// closeFragment finishes the method opened last.
func (f *fragmentHelper) closeFragment(m *fragmentMethod) {
	w := m.buf.W
	w.Printil("return")
	w.PopIndent()
	w.Printil("}")
}

// generatePostamble writes the helper type, its constructor, the fragment
// methods, and the Invoke dispatch into dst.
func (f *fragmentHelper) generatePostamble(dst *Writer) {
	if !f.used() {
		return
	}
	dst.Println("")
	dst.Printil(fmt.Sprintf("// %s carries the deferred body sections of the page.", f.typeName))
	dst.Printil(fmt.Sprintf("type %s struct {", f.typeName))
	dst.PushIndent()
	dst.Printil("runtime.FragmentBase")
	dst.Printil(fmt.Sprintf("page *%s", f.pageType))
	dst.PopIndent()
	dst.Printil("}")
	dst.Println("")

	dst.Printil(fmt.Sprintf("func new%s(page *%s, discriminator int, ctx *runtime.PageContext, parent any) *%s {",
		exportName(f.typeName), f.pageType, f.typeName))
	dst.PushIndent()
	dst.Printil(fmt.Sprintf("return &%s{", f.typeName))
	dst.PushIndent()
	dst.Printil("FragmentBase: runtime.FragmentBase{Discriminator: discriminator, Ctx: ctx, Parent: parent},")
	dst.Printil("page:         page,")
	dst.PopIndent()
	dst.Printil("}")
	dst.PopIndent()
	dst.Printil("}")
	dst.Println("")

	for _, m := range f.methods {
		m.buf.SpliceInto(dst)
		dst.Println("")
	}

	dst.Printil(fmt.Sprintf("func (h *%s) Invoke(w io.Writer) error {", f.typeName))
	dst.PushIndent()
	dst.Printil("if w != nil {")
	dst.PushIndent()
	dst.Printil("h.Ctx.PushBodyWriter(runtime.AsWriter(w))")
	dst.Printil("defer h.Ctx.PopBody()")
	dst.PopIndent()
	dst.Printil("}")
	dst.Printil("h.Ctx.SyncBeforeInvoke()")
	dst.Printil("var _gosp_oc runtime.Outcome")
	dst.Printil("var _gosp_err error")
	dst.Printil("switch h.Discriminator {")
	for _, m := range f.methods {
		dst.Printil(fmt.Sprintf("case %d:", m.id))
		dst.PushIndent()
		dst.Printil(fmt.Sprintf("_gosp_oc, _gosp_err = h.invoke%d(h.Ctx.Out())", m.id))
		dst.PopIndent()
	}
	dst.Printil("}")
	dst.Printil("return runtime.WrapFragmentError(h.Discriminator, runtime.AsError(_gosp_oc, _gosp_err))")
	dst.PopIndent()
	dst.Printil("}")
}

// exportName upper-cases the first byte for constructor names.
func exportName(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
