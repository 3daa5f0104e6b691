package gen

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"unicode/utf8"

	"gosp/ast"
	"gosp/tagmeta"
	"gosp/trace"
)

// Result is the output of one generation run.
type Result struct {
	Source  string
	LineMap *LineMap
}

// poolDecl is one handler pool the page owns.
type poolDecl struct {
	name   string
	goType string
}

// state is the traversal context threaded through the visitor: which
// handler variable encloses the current nodes, and whether scripting
// elements are still allowed.
type state struct {
	parent     string // enclosing handler variable, "nil" at the top
	scriptless bool   // inside a deferred body; raw scripting is an error
}

type generator struct {
	opts *Options
	root *ast.Root

	out     *Writer // active writer; switched for buffered sections
	bodyBuf *Buffer
	methods []*Buffer
	helper  *fragmentHelper

	names         *tagVarNames
	methodCounts  map[string]int
	tmpCount      int
	idCount       int

	pools     []poolDecl
	decls     []*ast.Declaration
	imports   map[string]bool
	propCache map[reflect.Type]*tagmeta.Properties

	textVars  map[string]string
	textOrder []string

	err error
}

// Generate turns a resolved template tree into Go source for one page or
// fragment unit.
func Generate(opts *Options, root *ast.Root) (*Result, error) {
	if opts.Trace && !trace.IsEnabled() {
		trace.Init(true, nil, os.Stderr)
	}
	if err := resolveTags(root, opts); err != nil {
		return nil, err
	}
	collectChildInfo(root)
	collectScriptingVars(root)

	g := &generator{
		opts:         opts,
		root:         root,
		helper:       newFragmentHelper(opts.pageStructName()),
		names:        newTagVarNames(),
		methodCounts: make(map[string]int),
		imports:      make(map[string]bool),
		propCache:    make(map[reflect.Type]*tagmeta.Properties),
		textVars:     make(map[string]string),
	}
	g.pools = g.collectPoolDecls()
	g.decls = collectDeclarations(root)

	g.bodyBuf = NewBuffer(root.Body.Nodes)
	g.out = g.bodyBuf.W
	g.out.PushIndent()
	g.visitList(root.Body, state{parent: "nil", scriptless: opts.IsTagFile})
	if g.err != nil {
		return nil, g.err
	}

	src := g.assemble()
	res := &Result{Source: src}
	if opts.GenLineMap {
		res.LineMap = collectLineMap(root, opts.SourcePath)
	}
	return res, nil
}

// collectPoolDecls resolves pool names and the handler types behind them.
func (g *generator) collectPoolDecls() []poolDecl {
	names := collectPools(g.root, g.opts)
	if len(names) == 0 {
		return nil
	}
	types := make(map[string]string, len(names))
	ast.Walk(g.root, func(n ast.Node) bool {
		if ct, ok := n.(*ast.CustomTag); ok && ct.PoolName != "" {
			types[ct.PoolName] = ct.Meta.GoType
		}
		return true
	})
	decls := make([]poolDecl, len(names))
	for i, name := range names {
		decls[i] = poolDecl{name: name, goType: types[name]}
	}
	return decls
}

func (g *generator) addImport(path string) {
	if path != "" {
		g.imports[path] = true
	}
}

func (g *generator) tmp() int {
	g.tmpCount++
	return g.tmpCount
}

// fail records the first generation error; the traversal stops emitting
// once one is set.
func (g *generator) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

func (g *generator) visitList(list *ast.NodeList, st state) {
	if list == nil {
		return
	}
	for _, n := range list.Nodes {
		if g.err != nil {
			return
		}
		g.visitNode(n, st)
	}
}

func (g *generator) visitNode(n ast.Node, st state) {
	begin := g.out.Line()
	switch t := n.(type) {
	case *ast.TemplateText:
		g.visitTemplateText(t)
	case *ast.ELExpression:
		g.visitEL(t)
	case *ast.Expression:
		if st.scriptless {
			g.fail(staticErr(t, "scripting expression not allowed in a deferred body"))
			return
		}
		g.emitErrCall(fmt.Sprintf("runtime.Print(out, (%s))", t.Text))
	case *ast.Scriptlet:
		if st.scriptless {
			g.fail(staticErr(t, "scriptlet not allowed in a deferred body"))
			return
		}
		g.out.PrintMultiLn(t.Text)
	case *ast.Declaration:
		// Emitted at file scope during assembly.
		return
	case *ast.IncludeAction:
		g.visitInclude(t, st)
	case *ast.ForwardAction:
		g.visitForward(t, st)
	case *ast.UseObject:
		g.visitUseObject(t, st)
	case *ast.GetProperty:
		g.visitGetProperty(t)
	case *ast.SetProperty:
		g.visitSetProperty(t, st)
	case *ast.InvokeAction:
		g.visitInvoke(t)
	case *ast.DoBodyAction:
		g.visitDoBody(t)
	case *ast.NamedAttribute:
		// Consumed by the owning action; nothing to emit in the flow.
		return
	case *ast.TagBody:
		g.visitList(t.Body, st)
	case *ast.Element:
		g.visitElement(t, st)
	case *ast.UninterpretedTag:
		g.visitUninterpreted(t, st)
	case *ast.CustomTag:
		g.visitCustomTag(t, st)
	case *ast.Param:
		// Params are consumed by include/forward; a stray one is a
		// validator escape.
		g.fail(staticErr(t, "param action outside include or forward"))
		return
	default:
		g.fail(staticErr(n, "unsupported node kind %T", n))
		return
	}
	if g.err == nil {
		n.SetGenBegin(begin)
		n.SetGenEnd(g.out.Line())
		if trace.IsEnabled() {
			trace.Node(fmt.Sprintf("%T", n), n.Position().String(), begin)
		}
	}
}

// emitErrCall writes a call that assigns the render error and returns on
// failure.
func (g *generator) emitErrCall(call string) {
	g.out.Printil(fmt.Sprintf("if _gosp_err = %s; _gosp_err != nil {", call))
	g.out.PushIndent()
	g.out.Printil("return")
	g.out.PopIndent()
	g.out.Printil("}")
}

// emitWriteString writes a checked string write to the active output.
func (g *generator) emitWriteString(lit string) {
	g.out.Printil(fmt.Sprintf("if _, _gosp_err = out.WriteString(%s); _gosp_err != nil {", lit))
	g.out.PushIndent()
	g.out.Printil("return")
	g.out.PopIndent()
	g.out.Printil("}")
}

const textChunkSize = 16 * 1024

func (g *generator) visitTemplateText(n *ast.TemplateText) {
	text := n.Text
	if text == "" {
		return
	}
	if g.opts.TrimDirectiveWhitespace && strings.TrimSpace(text) == "" {
		return
	}

	// Very short text goes out byte by byte; no literal bookkeeping.
	if len(text) <= 3 {
		for i := 0; i < len(text); i++ {
			g.out.Printil(fmt.Sprintf("if _gosp_err = out.WriteByte(%s); _gosp_err != nil {", quoteByte(text[i])))
			g.out.PushIndent()
			g.out.Printil("return")
			g.out.PopIndent()
			g.out.Printil("}")
		}
		return
	}

	if g.opts.CharArrays {
		for len(text) > 0 {
			chunk := text
			if len(chunk) > textChunkSize {
				// Back the cut off to a rune boundary so no chunk holds a
				// torn multi-byte sequence.
				cut := textChunkSize
				for cut > 0 && !utf8.RuneStart(text[cut]) {
					cut--
				}
				if cut == 0 {
					cut = textChunkSize
				}
				chunk = chunk[:cut]
			}
			text = text[len(chunk):]
			name := g.textVar(chunk)
			g.out.Printil(fmt.Sprintf("if _, _gosp_err = out.Write(%s); _gosp_err != nil {", name))
			g.out.PushIndent()
			g.out.Printil("return")
			g.out.PopIndent()
			g.out.Printil("}")
		}
	} else {
		line := g.out.Line()
		g.emitWriteString(quote(text))
		for i := 1; i <= strings.Count(text, "\n"); i++ {
			n.AddSmap(i, line)
		}
	}
}

// textVar interns a text chunk as a package-level byte slice; identical
// chunks share one variable.
func (g *generator) textVar(chunk string) string {
	if name, ok := g.textVars[chunk]; ok {
		return name
	}
	name := fmt.Sprintf("_gosp_text_%d", len(g.textVars))
	g.textVars[chunk] = name
	g.textOrder = append(g.textOrder, chunk)
	return name
}

func (g *generator) visitEL(n *ast.ELExpression) {
	if n.Type == '#' {
		// Deferred syntax in template text is not evaluated; it passes
		// through for client-side consumers.
		g.emitWriteString(quote("#{" + n.Text + "}"))
		return
	}
	if err := validateExpr(n.Text); err != nil {
		g.fail(wrapStatic(n, "template expression", err))
		return
	}
	g.emitErrCall(fmt.Sprintf("runtime.WriteEval(_gosp_ctx, %s)", quote(n.Text)))
}

func (g *generator) visitInclude(n *ast.IncludeAction, st state) {
	target := g.dispatchTarget(n, n.Page, n.Body, st)
	if g.err != nil {
		return
	}
	flush := "false"
	if n.Flush {
		flush = "true"
	}
	g.emitErrCall(fmt.Sprintf("_gosp_ctx.Include(%s, %s)", target, flush))
}

func (g *generator) visitForward(n *ast.ForwardAction, st state) {
	target := g.dispatchTarget(n, n.Page, n.Body, st)
	if g.err != nil {
		return
	}
	g.emitErrCall(fmt.Sprintf("_gosp_ctx.Forward(%s)", target))
	g.out.Printil("_gosp_oc = runtime.SkipPage")
	g.out.Printil("return")
}

// dispatchTarget builds the include/forward path expression, appending
// nested params as query-string pieces.
func (g *generator) dispatchTarget(n ast.Node, page ast.Attr, body *ast.NodeList, st state) string {
	expr := g.attributeValue(n, &page, "string", st)
	if g.err != nil {
		return ""
	}
	sep := "?"
	if page.IsLiteral() && strings.Contains(page.Text, "?") {
		sep = "&"
	}
	if body == nil {
		return expr
	}
	for _, c := range body.Nodes {
		p, ok := c.(*ast.Param)
		if !ok {
			continue
		}
		var val string
		if p.Value.IsLiteral() {
			val = quote(url.QueryEscape(p.Value.Text))
		} else {
			val = fmt.Sprintf("runtime.URLEncode(%s)", g.attributeValue(p, &p.Value, "string", st))
			if g.err != nil {
				return ""
			}
		}
		expr += fmt.Sprintf(" + %s + %s", quote(sep+p.Name+"="), val)
		sep = "&"
	}
	return expr
}

// scopeConst maps a template scope name to the runtime constant.
func scopeConst(scope string) string {
	switch scope {
	case "request":
		return "runtime.RequestScope"
	case "session":
		return "runtime.SessionScope"
	case "application":
		return "runtime.ApplicationScope"
	default:
		return "runtime.PageScope"
	}
}

// scopeLock returns the store generated code locks around conditional
// creation in the given scope, or "" when no locking applies.
func scopeLock(scope string) string {
	switch scope {
	case "session":
		return "_gosp_ctx.Session"
	case "application":
		return "_gosp_ctx.Application"
	}
	return ""
}

func (g *generator) visitUseObject(n *ast.UseObject, st state) {
	varType := n.TypeName
	if varType == "" {
		varType = "*" + n.Class
	}
	id := makeIdentifier(n.ID)
	scope := scopeConst(n.Scope)
	lock := scopeLock(n.Scope)
	fresh := fmt.Sprintf("_gosp_fresh_%d", g.tmp())

	g.out.Printil(fmt.Sprintf("var %s %s", id, varType))
	if lock != "" {
		g.out.Printil(lock + ".Lock()")
	}
	g.out.Printil(fmt.Sprintf("%s, _ = _gosp_ctx.GetScopedAttribute(%s, %s).(%s)", id, quote(n.ID), scope, varType))
	g.out.Printil(fmt.Sprintf("%s := %s == nil", fresh, id))
	g.out.Printil(fmt.Sprintf("if %s {", fresh))
	g.out.PushIndent()
	switch {
	case n.Class != "":
		g.out.Printil(fmt.Sprintf("%s = new(%s)", id, n.Class))
		g.out.Printil(fmt.Sprintf("_gosp_ctx.Inject(%s)", id))
	case n.BeanName != nil:
		nameExpr := g.attributeValue(n, n.BeanName, "string", st)
		if g.err != nil {
			return
		}
		obj := fmt.Sprintf("_gosp_obj_%d", g.tmp())
		errv := fmt.Sprintf("_gosp_err_%d", g.tmp())
		ok := fmt.Sprintf("_gosp_ok_%d", g.tmp())
		g.out.Printil(fmt.Sprintf("%s, %s := runtime.Instantiate(p.cfg, %s)", obj, errv, nameExpr))
		g.out.Printil(fmt.Sprintf("if %s != nil {", errv))
		g.out.PushIndent()
		if lock != "" {
			g.out.Printil(lock + ".Unlock()")
		}
		g.out.Printil(fmt.Sprintf("_gosp_err = %s", errv))
		g.out.Printil("return")
		g.out.PopIndent()
		g.out.Printil("}")
		g.out.Printil(fmt.Sprintf("var %s bool", ok))
		g.out.Printil(fmt.Sprintf("%s, %s = %s.(%s)", id, ok, obj, varType))
		g.out.Printil(fmt.Sprintf("if !%s {", ok))
		g.out.PushIndent()
		if lock != "" {
			g.out.Printil(lock + ".Unlock()")
		}
		g.out.Printil(fmt.Sprintf("_gosp_err = runtime.CastFailed(%s, %s)", quote(n.ID), quote(varType)))
		g.out.Printil("return")
		g.out.PopIndent()
		g.out.Printil("}")
	default:
		g.fail(staticErr(n, "scoped object %s declares neither class nor object name", n.ID))
		return
	}
	g.out.Printil(fmt.Sprintf("_gosp_ctx.SetScopedAttribute(%s, %s, %s)", quote(n.ID), id, scope))
	g.out.PopIndent()
	g.out.Printil("}")
	if lock != "" {
		g.out.Printil(lock + ".Unlock()")
	}
	g.out.Printil(fmt.Sprintf("_ = %s", id))

	if n.Body.Size() > 0 {
		g.out.Printil(fmt.Sprintf("if %s {", fresh))
		g.out.PushIndent()
		g.visitList(n.Body, st)
		g.out.PopIndent()
		g.out.Printil("}")
	} else {
		g.out.Printil(fmt.Sprintf("_ = %s", fresh))
	}
}

func (g *generator) visitGetProperty(n *ast.GetProperty) {
	val := fmt.Sprintf("_gosp_val_%d", g.tmp())
	errv := fmt.Sprintf("_gosp_err_%d", g.tmp())
	g.out.Printil(fmt.Sprintf("%s, %s := runtime.GetProperty(_gosp_ctx.FindAttribute(%s), %s)",
		val, errv, quote(n.Name), quote(n.Property)))
	g.out.Printil(fmt.Sprintf("if %s != nil {", errv))
	g.out.PushIndent()
	g.out.Printil(fmt.Sprintf("_gosp_err = %s", errv))
	g.out.Printil("return")
	g.out.PopIndent()
	g.out.Printil("}")
	g.emitErrCall(fmt.Sprintf("runtime.Print(out, %s)", val))
}

func (g *generator) visitSetProperty(n *ast.SetProperty, st state) {
	obj := fmt.Sprintf("_gosp_ctx.FindAttribute(%s)", quote(n.Name))
	switch {
	case n.Property == "*":
		g.emitErrCall(fmt.Sprintf("runtime.SetPropertiesFromRequest(_gosp_ctx, %s)", obj))
	case n.Value == nil:
		param := n.Param
		if param == "" {
			param = n.Property
		}
		g.emitErrCall(fmt.Sprintf("runtime.SetPropertyFromParam(_gosp_ctx, %s, %s, %s)",
			obj, quote(n.Property), quote(param)))
	default:
		val := g.attributeValue(n, n.Value, "any", st)
		if g.err != nil {
			return
		}
		g.emitErrCall(fmt.Sprintf("runtime.SetProperty(%s, %s, %s)", obj, quote(n.Property), val))
	}
}

func (g *generator) visitInvoke(n *ast.InvokeAction) {
	if !g.opts.IsTagFile {
		g.fail(staticErr(n, "invoke action outside a fragment unit"))
		return
	}
	g.emitFragmentCall(fmt.Sprintf("p.%s", makeIdentifier(n.Fragment)), n.Var, n.VarReader, n.Scope)
}

func (g *generator) visitDoBody(n *ast.DoBodyAction) {
	if !g.opts.IsTagFile {
		g.fail(staticErr(n, "doBody action outside a fragment unit"))
		return
	}
	g.emitFragmentCall("p.body", n.Var, n.VarReader, n.Scope)
}

// emitFragmentCall invokes a fragment field, capturing its output into a
// scoped variable when one is named.
func (g *generator) emitFragmentCall(frag, varName, varReader, scope string) {
	g.out.Printil(fmt.Sprintf("if %s != nil {", frag))
	g.out.PushIndent()
	g.out.Printil("_gosp_ctx.SyncBeforeInvoke()")
	switch {
	case varName != "" || varReader != "":
		val := fmt.Sprintf("_gosp_val_%d", g.tmp())
		errv := fmt.Sprintf("_gosp_err_%d", g.tmp())
		g.out.Printil(fmt.Sprintf("%s, %s := runtime.InvokeToString(%s)", val, errv, frag))
		g.out.Printil(fmt.Sprintf("if %s != nil {", errv))
		g.out.PushIndent()
		g.out.Printil(fmt.Sprintf("if _gosp_oc, _gosp_err = runtime.AsOutcome(%s); _gosp_err != nil || _gosp_oc == runtime.SkipPage {", errv))
		g.out.PushIndent()
		g.out.Printil("return")
		g.out.PopIndent()
		g.out.Printil("}")
		g.out.PopIndent()
		g.out.Printil("}")
		name := varName
		store := val
		if varReader != "" {
			name = varReader
			store = fmt.Sprintf("runtime.NewStringReader(%s)", val)
		}
		g.out.Printil(fmt.Sprintf("_gosp_ctx.SetScopedAttribute(%s, %s, %s)", quote(name), store, scopeConst(scope)))
	default:
		g.out.Printil(fmt.Sprintf("if _gosp_oc, _gosp_err = runtime.AsOutcome(%s.Invoke(nil)); _gosp_err != nil || _gosp_oc == runtime.SkipPage {", frag))
		g.out.PushIndent()
		g.out.Printil("return")
		g.out.PopIndent()
		g.out.Printil("}")
	}
	g.out.PopIndent()
	g.out.Printil("}")
}

func (g *generator) visitElement(n *ast.Element, st state) {
	nameExpr := g.attributeValue(n, &n.Name, "string", st)
	if g.err != nil {
		return
	}
	if n.Name.IsLiteral() {
		g.emitWriteString(quote("<" + n.Name.Text))
	} else {
		name := fmt.Sprintf("_gosp_name_%d", g.tmp())
		g.out.Printil(fmt.Sprintf("%s := %s", name, nameExpr))
		g.emitWriteString(`"<" + ` + name)
		nameExpr = name
	}
	for i := range n.Attrs {
		a := &n.Attrs[i]
		omitCond := ""
		if a.Kind == ast.AttrNamed && a.Named != nil && a.Named.Omit != nil {
			omit := a.Named.Omit
			if omit.IsLiteral() {
				if omit.Text == "true" {
					continue
				}
			} else {
				omitCond = g.attributeValue(n, omit, "bool", st)
				if g.err != nil {
					return
				}
			}
		}
		val := g.attributeValue(n, a, "string", st)
		if g.err != nil {
			return
		}
		if omitCond != "" {
			g.out.Printil(fmt.Sprintf("if !(%s) {", omitCond))
			g.out.PushIndent()
		}
		g.emitWriteString(fmt.Sprintf("%s + %s + %s", quote(" "+a.Name+`="`), val, quote(`"`)))
		if omitCond != "" {
			g.out.PopIndent()
			g.out.Printil("}")
		}
	}
	body := nonAttributeNodes(n.Body)
	if len(body) == 0 {
		g.emitWriteString(quote("/>"))
		return
	}
	g.emitWriteString(quote(">"))
	g.visitList(&ast.NodeList{Nodes: body}, st)
	if n.Name.IsLiteral() {
		g.emitWriteString(quote("</" + n.Name.Text + ">"))
	} else {
		g.emitWriteString(`"</" + ` + nameExpr + ` + ">"`)
	}
}

func (g *generator) visitUninterpreted(n *ast.UninterpretedTag, st state) {
	g.emitWriteString(quote("<" + n.QName))
	for i := range n.Attrs {
		a := &n.Attrs[i]
		if a.IsLiteral() {
			g.emitWriteString(quote(fmt.Sprintf(" %s=%q", a.Name, a.Text)))
			continue
		}
		val := g.attributeValue(n, a, "string", st)
		if g.err != nil {
			return
		}
		g.emitWriteString(fmt.Sprintf("%s + %s + %s", quote(" "+a.Name+`="`), val, quote(`"`)))
	}
	if n.Body.Size() == 0 {
		g.emitWriteString(quote("/>"))
		return
	}
	g.emitWriteString(quote(">"))
	g.visitList(n.Body, st)
	g.emitWriteString(quote("</" + n.QName + ">"))
}

// nonAttributeNodes filters named attributes out of a body list; they are
// attribute values, not content.
func nonAttributeNodes(list *ast.NodeList) []ast.Node {
	if list == nil {
		return nil
	}
	var out []ast.Node
	for _, n := range list.Nodes {
		if _, ok := n.(*ast.NamedAttribute); ok {
			continue
		}
		out = append(out, n)
	}
	return out
}
