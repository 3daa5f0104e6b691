package gen

import (
	"fmt"
	"sort"
	"strings"

	"gosp/ast"
)

// assemble lays out the final source file: the traversal filled the body
// and method buffers, so the header (whose imports were only known at the
// end) comes first and the buffers splice in after it.
func (g *generator) assemble() string {
	main := NewWriter()
	page := g.opts.pageStructName()

	main.Printil(fmt.Sprintf("// Code generated by gospc from %s. DO NOT EDIT.", g.opts.SourcePath))
	main.Println("")
	main.Printil("package " + g.opts.packageName())
	main.Println("")
	g.writeImports(main)

	declStamps := g.writeDeclarations(main)
	g.writeTextVars(main)
	g.writeStruct(main)
	g.writeGetters(main)
	if g.opts.IsTagFile {
		g.writeTagMethods(main)
	} else {
		g.writeRenderWrapper(main)
	}

	// The render body.
	main.Printil(fmt.Sprintf("func (p *%s) render(_gosp_ctx *runtime.PageContext) (_gosp_oc runtime.Outcome, _gosp_err error) {", page))
	main.PushIndent()
	main.Printil("defer runtime.CatchPanic(&_gosp_err)")
	main.Printil("out := _gosp_ctx.Out()")
	main.Printil("request := _gosp_ctx.Request")
	main.Printil("session := _gosp_ctx.Session")
	main.Printil("application := _gosp_ctx.Application")
	main.Printil("_, _, _, _ = out, request, session, application")
	if g.opts.IsTagFile {
		g.writeAttrPublish(main)
	}
	if g.opts.Prolog != "" {
		main.Printil(fmt.Sprintf("if _, _gosp_err = out.WriteString(%s); _gosp_err != nil {", quote(g.opts.Prolog)))
		main.PushIndent()
		main.Printil("return")
		main.PopIndent()
		main.Printil("}")
	}
	main.PopIndent()
	g.bodyBuf.SpliceInto(main)
	main.PushIndent()
	main.Printil("return")
	main.PopIndent()
	main.Printil("}")

	for _, m := range g.methods {
		main.Println("")
		m.SpliceInto(main)
	}
	g.helper.generatePostamble(main)

	for _, s := range declStamps {
		s.node.SetGenBegin(s.begin)
		s.node.SetGenEnd(s.end)
	}
	return main.String()
}

// importList resolves the final import set: packages discovered during the
// traversal, template-declared extras, the runtime, and io when fragments
// exist. Standard library paths group first.
func (g *generator) importList() (std, rest []string) {
	all := make(map[string]bool, len(g.imports))
	for path := range g.imports {
		all[path] = true
	}
	for _, path := range g.opts.Imports {
		all[path] = true
	}
	all["gosp/runtime"] = true
	if g.helper.used() {
		all["io"] = true
	}

	for path := range all {
		if strings.Contains(strings.SplitN(path, "/", 2)[0], ".") || strings.HasPrefix(path, "gosp/") {
			rest = append(rest, path)
		} else {
			std = append(std, path)
		}
	}
	sort.Strings(std)
	sort.Strings(rest)
	return std, rest
}

func (g *generator) writeImports(w *Writer) {
	std, rest := g.importList()

	w.Printil("import (")
	w.PushIndent()
	for _, path := range std {
		w.Printil(quote(path))
	}
	if len(std) > 0 && len(rest) > 0 {
		w.Println("")
	}
	for _, path := range rest {
		w.Printil(quote(path))
	}
	w.PopIndent()
	w.Printil(")")
	w.Println("")
}

type declStamp struct {
	node       ast.Node
	begin, end int
}

// writeDeclarations emits template declarations at file scope. Their line
// stamps are applied after every buffer has spliced so nothing shifts
// them.
func (g *generator) writeDeclarations(w *Writer) []declStamp {
	var stamps []declStamp
	for _, d := range g.decls {
		begin := w.Line()
		w.PrintMultiLn(d.Text)
		stamps = append(stamps, declStamp{node: d, begin: begin, end: w.Line()})
		w.Println("")
	}
	return stamps
}

func (g *generator) writeTextVars(w *Writer) {
	if len(g.textOrder) == 0 {
		return
	}
	w.Printil("var (")
	w.PushIndent()
	for _, chunk := range g.textOrder {
		w.Printil(fmt.Sprintf("%s = []byte(%s)", g.textVars[chunk], quote(chunk)))
	}
	w.PopIndent()
	w.Printil(")")
	w.Println("")
}

func (g *generator) writeStruct(w *Writer) {
	page := g.opts.pageStructName()

	w.Printil(fmt.Sprintf("type %s struct {", page))
	w.PushIndent()
	w.Printil("cfg *runtime.Config")
	if g.opts.IsTagFile {
		w.Printil("ctx    *runtime.PageContext")
		w.Printil("parent any")
		w.Printil("body   runtime.Fragment")
		for _, a := range g.tagFileAttrs() {
			if a.isBody() {
				continue
			}
			w.Printil(fmt.Sprintf("%s %s", a.field, a.typeName))
		}
	}
	for _, pd := range g.pools {
		w.Printil(fmt.Sprintf("%s *runtime.TagPool", pd.name))
	}
	w.PopIndent()
	w.Printil("}")
	w.Println("")

	w.Printil(fmt.Sprintf("func New%s() *%s {", exportName(page), page))
	w.PushIndent()
	w.Printil(fmt.Sprintf("return &%s{}", page))
	w.PopIndent()
	w.Printil("}")
	w.Println("")

	w.Printil(fmt.Sprintf("func (p *%s) Init(cfg *runtime.Config) {", page))
	w.PushIndent()
	w.Printil("p.cfg = cfg")
	for _, pd := range g.pools {
		w.Printil(fmt.Sprintf("p.%s = cfg.GetPool(%s, func() runtime.Tag { return new(%s) })",
			pd.name, quote(pd.name), pd.goType))
	}
	w.PopIndent()
	w.Printil("}")
	w.Println("")

	w.Printil(fmt.Sprintf("func (p *%s) Destroy() {", page))
	w.PushIndent()
	for _, pd := range g.pools {
		w.Printil(fmt.Sprintf("p.%s.Release()", pd.name))
	}
	w.PopIndent()
	w.Printil("}")
	w.Println("")
}

// writeGetters emits the page metadata accessors the host consults when
// deciding whether a compiled unit is stale and how to initialize it.
func (g *generator) writeGetters(w *Writer) {
	page := g.opts.pageStructName()

	w.Printil(fmt.Sprintf("func (p *%s) Dependencies() map[string]int64 {", page))
	w.PushIndent()
	if len(g.opts.Dependencies) == 0 {
		w.Printil("return nil")
	} else {
		w.Printil("return map[string]int64{")
		w.PushIndent()
		deps := make([]string, 0, len(g.opts.Dependencies))
		for dep := range g.opts.Dependencies {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			w.Printil(fmt.Sprintf("%s: %d,", quote(dep), g.opts.Dependencies[dep]))
		}
		w.PopIndent()
		w.Printil("}")
	}
	w.PopIndent()
	w.Printil("}")
	w.Println("")

	std, rest := g.importList()
	w.Printil(fmt.Sprintf("func (p *%s) Imports() []string {", page))
	w.PushIndent()
	w.Printin("return []string{")
	for i, path := range append(std, rest...) {
		if i > 0 {
			w.Print(", ")
		}
		w.Print(quote(path))
	}
	w.Println("}")
	w.PopIndent()
	w.Printil("}")
	w.Println("")

	if !g.opts.IsTagFile {
		w.Printil(fmt.Sprintf("func (p *%s) ErrorPage() string { return %s }", page, quote(g.opts.ErrorPage)))
		w.Printil(fmt.Sprintf("func (p *%s) BufferSize() int  { return %d }", page, g.opts.BufferSize))
		w.Println("")
	}
}

func (g *generator) writeRenderWrapper(w *Writer) {
	page := g.opts.pageStructName()
	w.Printil(fmt.Sprintf("func (p *%s) Render(_gosp_ctx *runtime.PageContext) error {", page))
	w.PushIndent()
	w.Printil("_, _gosp_err := p.render(_gosp_ctx)")
	w.Printil("return _gosp_ctx.FinishPage(_gosp_err)")
	w.PopIndent()
	w.Printil("}")
	w.Println("")
}

// tagFileAttr is one declared attribute of a fragment unit, as a struct
// field plus its setter.
type tagFileAttr struct {
	name     string
	field    string
	typeName string
	fragment bool
}

// isBody reports whether the attribute aliases the unit's body fragment;
// the built-in body field and SetBody serve it.
func (a tagFileAttr) isBody() bool { return a.fragment && a.field == "body" }

func (g *generator) tagFileAttrs() []tagFileAttr {
	info := g.opts.TagFileInfo
	if info == nil {
		return nil
	}
	out := make([]tagFileAttr, 0, len(info.Attrs))
	for i := range info.Attrs {
		a := &info.Attrs[i]
		fa := tagFileAttr{
			name:     a.Name,
			field:    makeIdentifier(a.Name),
			typeName: a.TypeName,
			fragment: a.Fragment,
		}
		if fa.fragment {
			fa.typeName = "runtime.Fragment"
		} else if fa.typeName == "" {
			fa.typeName = "any"
		}
		out = append(out, fa)
	}
	return out
}

// writeTagMethods emits the fragment-unit protocol: context and parent
// binding, attribute setters, the body hook, and DoTag delegating to the
// render body.
func (g *generator) writeTagMethods(w *Writer) {
	page := g.opts.pageStructName()

	w.Printil(fmt.Sprintf("func (p *%s) SetContext(ctx *runtime.PageContext) { p.ctx = ctx }", page))
	w.Printil(fmt.Sprintf("func (p *%s) SetParent(parent any)                { p.parent = parent }", page))
	w.Printil(fmt.Sprintf("func (p *%s) Parent() any                         { return p.parent }", page))
	w.Printil(fmt.Sprintf("func (p *%s) SetBody(body runtime.Fragment)       { p.body = body }", page))
	w.Println("")

	setters := 0
	for _, a := range g.tagFileAttrs() {
		if a.isBody() {
			continue
		}
		w.Printil(fmt.Sprintf("func (p *%s) Set%s(v %s) { p.%s = v }",
			page, exportName(a.field), a.typeName, a.field))
		setters++
	}
	if setters > 0 {
		w.Println("")
	}

	w.Printil(fmt.Sprintf("func (p *%s) DoTag() error {", page))
	w.PushIndent()
	w.Printil("_gosp_oc, _gosp_err := p.render(p.ctx)")
	w.Printil("return runtime.AsError(_gosp_oc, _gosp_err)")
	w.PopIndent()
	w.Printil("}")
	w.Println("")
}

// writeAttrPublish exposes the unit's attribute values as page attributes
// so expressions inside the body can reach them.
func (g *generator) writeAttrPublish(w *Writer) {
	for _, a := range g.tagFileAttrs() {
		if a.fragment {
			continue
		}
		w.Printil(fmt.Sprintf("_gosp_ctx.SetAttribute(%s, p.%s)", quote(a.name), a.field))
	}
}
