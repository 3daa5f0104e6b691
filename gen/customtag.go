package gen

import (
	"fmt"

	"gosp/ast"
	"gosp/tagmeta"
	"gosp/trace"
)

// savedVar is one scripting variable stashed before a nested same-name tag
// runs, restored afterwards.
type savedVar struct {
	name string
	temp string
}

func (g *generator) visitCustomTag(n *ast.CustomTag, st state) {
	if n.UsePlugin {
		for _, s := range n.PluginStart {
			g.visitNode(s, st)
		}
		g.visitList(&ast.NodeList{Nodes: nonAttributeNodes(n.Body)}, st)
		for _, s := range n.PluginEnd {
			g.visitNode(s, st)
		}
		return
	}
	meta := n.Meta
	if meta == nil {
		g.fail(staticErr(n, "unresolved tag %s", n.QName()))
		return
	}
	g.addImport(meta.Import)

	if meta.Simple {
		trace.Tag(n.QName(), n.Position().String(), false, false)
		g.simpleTag(n, st)
		return
	}

	split := n.Info.Scriptless() && !n.Info.HasScriptingVars && !meta.HasScriptingVars()
	trace.Tag(n.QName(), n.Position().String(), n.PoolName != "", split)
	if split {
		g.splitMethodTag(n, st)
		return
	}
	g.classicLifecycle(n, st)
}

// splitMethodTag moves a scriptless tag invocation into its own method so
// deep trees do not grow one giant render body.
func (g *generator) splitMethodTag(n *ast.CustomTag, st state) {
	qn := makeIdentifier(n.Prefix) + "_" + makeIdentifier(n.Name)
	count := g.methodCounts[qn]
	g.methodCounts[qn] = count + 1
	n.MethodName = fmt.Sprintf("_gosp_meth_%s_%d", qn, count)

	g.out.Printil(fmt.Sprintf("if _gosp_oc, _gosp_err := p.%s(_gosp_ctx, %s); _gosp_err != nil || _gosp_oc == runtime.SkipPage {", n.MethodName, st.parent))
	g.out.PushIndent()
	g.out.Printil("return _gosp_oc, _gosp_err")
	g.out.PopIndent()
	g.out.Printil("}")

	buf := NewBuffer(n.Body.Nodes)
	g.methods = append(g.methods, buf)
	prev := g.out
	g.out = buf.W

	g.out.Printil(fmt.Sprintf("func (p *%s) %s(_gosp_ctx *runtime.PageContext, _gosp_parent any) (_gosp_oc runtime.Outcome, _gosp_err error) {",
		g.opts.pageStructName(), n.MethodName))
	g.out.PushIndent()
	g.out.Printil("out := _gosp_ctx.Out()")
	g.out.Printil("_, _ = out, _gosp_parent")
	g.classicLifecycle(n, state{parent: "_gosp_parent", scriptless: st.scriptless})
	g.out.Printil("return")
	g.out.PopIndent()
	g.out.Printil("}")

	g.out = prev
}

// classicLifecycle emits the full handler protocol for one classic tag
// call site: variable bookkeeping, construction, attribute assignment,
// start, body evaluation, end, and handler recycling.
func (g *generator) classicLifecycle(n *ast.CustomTag, st state) {
	meta := n.Meta
	hv := g.names.next(n.Prefix, n.Name)

	g.declareVars(n, tagmeta.BeforeBody)
	var saves []savedVar
	saves = g.saveVars(n, tagmeta.BeforeBody, saves)
	saves = g.saveVars(n, tagmeta.Nested, saves)

	// Construct or recycle the handler.
	if n.PoolName != "" {
		got := fmt.Sprintf("_gosp_got_%d", g.tmp())
		g.out.Printil(fmt.Sprintf("%s, _ := p.%s.Get(_gosp_ctx)", got, n.PoolName))
		g.out.Printil(fmt.Sprintf("%s := %s.(*%s)", hv, got, meta.GoType))
	} else {
		g.out.Printil(fmt.Sprintf("%s := new(%s)", hv, meta.GoType))
		g.out.Printil(fmt.Sprintf("_gosp_ctx.Inject(%s)", hv))
	}
	g.out.Printil(fmt.Sprintf("%s.SetPageContext(_gosp_ctx)", hv))
	g.out.Printil(fmt.Sprintf("%s.SetParent(runtime.AsTagParent(%s))", hv, st.parent))
	g.assignAttributes(n, hv, st)
	if g.err != nil {
		return
	}
	// Id binding follows attribute assignment.
	if meta.IDConsumer {
		g.idCount++
		g.out.Printil(fmt.Sprintf("%s.SetID(%s)", hv, quote(fmt.Sprintf("gosp_id_%d", g.idCount))))
	}

	es := fmt.Sprintf("_gosp_es_%d", g.tmp())
	if meta.TryCatchFinally {
		depth := fmt.Sprintf("_gosp_depth_%d", g.tmp())
		g.out.Printil(fmt.Sprintf("%s := _gosp_ctx.BodyDepth()", depth))
		g.out.Printil("_gosp_oc, _gosp_err = func() (_gosp_oc runtime.Outcome, _gosp_err error) {")
		g.out.PushIndent()
		g.out.Printil(fmt.Sprintf("defer %s.DoFinally()", hv))
		g.out.Printil(fmt.Sprintf("defer runtime.Catch(&_gosp_err, %s, %s, _gosp_ctx)", hv, depth))
		g.startToEnd(n, hv, es, st)
		g.out.Printil("return")
		g.out.PopIndent()
		g.out.Printil("}()")
		g.out.Printil("if _gosp_err != nil || _gosp_oc == runtime.SkipPage {")
		g.out.PushIndent()
		g.out.Printil("return")
		g.out.PopIndent()
		g.out.Printil("}")
	} else {
		g.startToEnd(n, hv, es, st)
	}
	if g.err != nil {
		return
	}

	g.declareVars(n, tagmeta.AfterBody)
	g.syncVars(n, tagmeta.BeforeBody)
	g.syncVars(n, tagmeta.AfterBody)
	g.restoreVars(saves)
}

// startToEnd emits DoStartTag through handler recycling; inside a
// try/catch/finally wrapper this runs within the recovery closure.
func (g *generator) startToEnd(n *ast.CustomTag, hv, es string, st state) {
	meta := n.Meta
	g.out.Printil(fmt.Sprintf("var %s runtime.EvalResult", es))
	g.out.Printil(fmt.Sprintf("if %s, _gosp_err = %s.DoStartTag(); _gosp_err != nil {", es, hv))
	g.out.PushIndent()
	g.out.Printil("return")
	g.out.PopIndent()
	g.out.Printil("}")

	body := nonAttributeNodes(n.Body)
	if len(body) > 0 {
		g.out.Printil(fmt.Sprintf("if %s != runtime.SkipBody {", es))
		g.out.PushIndent()
		if meta.BodyTag {
			g.out.Printil(fmt.Sprintf("if %s == runtime.EvalBodyBuffered {", es))
			g.out.PushIndent()
			g.out.Printil(fmt.Sprintf("if out, _gosp_err = runtime.StartBufferedBody(_gosp_ctx, %s); _gosp_err != nil {", hv))
			g.out.PushIndent()
			g.out.Printil("return")
			g.out.PopIndent()
			g.out.Printil("}")
			g.out.PopIndent()
			g.out.Printil("}")
		}
		g.declareVars(n, tagmeta.Nested)
		g.syncVars(n, tagmeta.BeforeBody)
		g.syncVars(n, tagmeta.Nested)
		if meta.Iteration {
			g.out.Printil("for {")
			g.out.PushIndent()
		}
		g.visitList(&ast.NodeList{Nodes: body}, state{parent: hv, scriptless: st.scriptless})
		if g.err != nil {
			return
		}
		if meta.Iteration {
			again := fmt.Sprintf("_gosp_again_%d", g.tmp())
			g.out.Printil(fmt.Sprintf("var %s runtime.EvalResult", again))
			g.out.Printil(fmt.Sprintf("if %s, _gosp_err = %s.DoAfterBody(); _gosp_err != nil {", again, hv))
			g.out.PushIndent()
			g.out.Printil("return")
			g.out.PopIndent()
			g.out.Printil("}")
			g.out.Printil(fmt.Sprintf("if %s != runtime.EvalBodyAgain {", again))
			g.out.PushIndent()
			g.out.Printil("break")
			g.out.PopIndent()
			g.out.Printil("}")
			g.syncVars(n, tagmeta.Nested)
			g.out.PopIndent()
			g.out.Printil("}")
		}
		if meta.BodyTag {
			g.out.Printil(fmt.Sprintf("if %s == runtime.EvalBodyBuffered {", es))
			g.out.PushIndent()
			g.out.Printil("out = _gosp_ctx.PopBody()")
			g.out.PopIndent()
			g.out.Printil("}")
		}
		g.out.PopIndent()
		g.out.Printil("}")
	} else {
		g.syncVars(n, tagmeta.BeforeBody)
		g.syncVars(n, tagmeta.Nested)
	}

	g.out.Printil(fmt.Sprintf("if %s, _gosp_err = %s.DoEndTag(); _gosp_err != nil {", es, hv))
	g.out.PushIndent()
	g.out.Printil("return")
	g.out.PopIndent()
	g.out.Printil("}")

	g.out.Printil(fmt.Sprintf("if %s == runtime.AbortPage {", es))
	g.out.PushIndent()
	g.emitRecycle(n, hv)
	g.out.Printil("_gosp_oc = runtime.SkipPage")
	g.out.Printil("return")
	g.out.PopIndent()
	g.out.Printil("}")
	g.emitRecycle(n, hv)
}

func (g *generator) emitRecycle(n *ast.CustomTag, hv string) {
	if n.PoolName != "" {
		g.out.Printil(fmt.Sprintf("p.%s.Reuse(%s)", n.PoolName, hv))
	} else {
		g.out.Printil(fmt.Sprintf("%s.Release()", hv))
	}
}

// simpleTag emits the single-invocation protocol: construct, bind, assign,
// hand over the body as a fragment, run DoTag once.
func (g *generator) simpleTag(n *ast.CustomTag, st state) {
	meta := n.Meta
	hv := g.names.next(n.Prefix, n.Name)

	g.declareVars(n, tagmeta.BeforeBody)
	g.declareVars(n, tagmeta.AfterBody)

	g.out.Printil(fmt.Sprintf("%s := new(%s)", hv, meta.GoType))
	g.out.Printil(fmt.Sprintf("_gosp_ctx.Inject(%s)", hv))
	g.out.Printil(fmt.Sprintf("%s.SetContext(_gosp_ctx)", hv))
	g.out.Printil(fmt.Sprintf("%s.SetParent(%s)", hv, st.parent))
	g.assignAttributes(n, hv, st)
	if g.err != nil {
		return
	}

	body := nonAttributeNodes(n.Body)
	if len(body) > 0 {
		ctor := g.fragmentFor(body, hv)
		if g.err != nil {
			return
		}
		g.out.Printil(fmt.Sprintf("%s.SetBody(%s)", hv, ctor))
	}

	g.out.Printil(fmt.Sprintf("if _gosp_err = %s.DoTag(); _gosp_err != nil {", hv))
	g.out.PushIndent()
	g.out.Printil(fmt.Sprintf("_gosp_ctx.Destroy(%s)", hv))
	g.out.Printil("_gosp_oc, _gosp_err = runtime.AsOutcome(_gosp_err)")
	g.out.Printil("if _gosp_err != nil || _gosp_oc == runtime.SkipPage {")
	g.out.PushIndent()
	g.out.Printil("return")
	g.out.PopIndent()
	g.out.Printil("}")
	g.out.PopIndent()
	g.out.Printil("}")
	g.out.Printil(fmt.Sprintf("_gosp_ctx.Destroy(%s)", hv))

	g.syncVars(n, tagmeta.BeforeBody)
	g.syncVars(n, tagmeta.AfterBody)
}

// assignAttributes binds every attribute of the call site to the handler,
// routing undeclared ones to the dynamic interface when the tag accepts
// them and failing otherwise.
func (g *generator) assignAttributes(n *ast.CustomTag, hv string, st state) {
	meta := n.Meta
	for i := range n.Attrs {
		a := &n.Attrs[i]
		decl := meta.Attr(a.Name)
		if decl == nil && !a.Dynamic {
			if !meta.Dynamic {
				g.fail(staticErr(n, "tag %s has no attribute %q", n.QName(), a.Name))
				return
			}
			a.Dynamic = true
		}
		if a.Dynamic {
			val := g.attributeValue(n, a, "any", st)
			if g.err != nil {
				return
			}
			g.emitErrCall(fmt.Sprintf("%s.SetDynamicAttribute(%s, %s, %s)",
				hv, quote(a.URI), quote(a.Name), val))
			continue
		}

		var val string
		switch {
		case decl.Fragment:
			if a.Kind != ast.AttrNamed || a.Named == nil {
				g.fail(staticErr(n, "attribute %s of %s must be supplied as a body", a.Name, n.QName()))
				return
			}
			val = g.fragmentAttributeValue(a.Named, hv, st)
		case decl.DeferredValue || decl.DeferredMethod:
			val = g.deferredAttributeValue(n, a, decl.DeferredMethod)
		default:
			val = g.attributeValue(n, a, decl.TypeName, st)
		}
		if g.err != nil {
			return
		}
		g.out.Printil(fmt.Sprintf("%s.%s(%s)", hv, g.setterName(meta, a.Name), val))
	}
}

// setterName resolves the setter for an attribute, through reflection when
// the handler type is linked into this process, by convention otherwise.
func (g *generator) setterName(meta *tagmeta.TagInfo, attr string) string {
	if meta.HandlerType != nil {
		props, ok := g.propCache[meta.HandlerType]
		if !ok {
			var err error
			props, err = tagmeta.PropertiesOf(meta.HandlerType)
			if err != nil {
				g.fail(&IntrospectionError{Handler: meta.GoType, Err: err})
				return "Set" + exportName(makeIdentifier(attr))
			}
			g.propCache[meta.HandlerType] = props
		}
		if s := props.Setter(attr); s != nil {
			return s.Method
		}
	}
	return "Set" + exportName(makeIdentifier(attr))
}

func (g *generator) declareVars(n *ast.CustomTag, scope tagmeta.VarScope) {
	for _, v := range n.DeclaredVars(scope) {
		name, ok := varNameAt(n, v)
		if !ok {
			continue
		}
		typeName := v.TypeName
		if typeName == "" {
			typeName = "any"
		}
		g.out.Printil(fmt.Sprintf("var %s %s", makeIdentifier(name), typeName))
		g.out.Printil(fmt.Sprintf("_ = %s", makeIdentifier(name)))
	}
}

// saveVars stashes variables a same-named enclosing tag already exposed,
// so this invocation can overwrite and later restore them.
func (g *generator) saveVars(n *ast.CustomTag, scope tagmeta.VarScope, saves []savedVar) []savedVar {
	if n.NestingLevel == 0 || n.Meta == nil {
		return saves
	}
	for i := range n.Meta.Vars {
		v := &n.Meta.Vars[i]
		if v.Scope != scope {
			continue
		}
		name, ok := varNameAt(n, v)
		if !ok {
			continue
		}
		temp := fmt.Sprintf("_gosp_sv_%s_%d_%d", makeIdentifier(name), n.NestingLevel, g.tmp())
		g.out.Printil(fmt.Sprintf("%s := %s", temp, makeIdentifier(name)))
		g.out.Printil(fmt.Sprintf("_ = %s", temp))
		saves = append(saves, savedVar{name: makeIdentifier(name), temp: temp})
	}
	return saves
}

func (g *generator) restoreVars(saves []savedVar) {
	for i := len(saves) - 1; i >= 0; i-- {
		g.out.Printil(fmt.Sprintf("%s = %s", saves[i].name, saves[i].temp))
	}
}

// syncVars pulls scripting variables of the given scope out of the page
// context after the handler had a chance to set them.
func (g *generator) syncVars(n *ast.CustomTag, scope tagmeta.VarScope) {
	if n.Meta == nil {
		return
	}
	for i := range n.Meta.Vars {
		v := &n.Meta.Vars[i]
		if v.Scope != scope {
			continue
		}
		name, ok := varNameAt(n, v)
		if !ok {
			continue
		}
		ident := makeIdentifier(name)
		if v.TypeName == "" || v.TypeName == "any" {
			g.out.Printil(fmt.Sprintf("%s = _gosp_ctx.FindAttribute(%s)", ident, quote(name)))
		} else {
			g.out.Printil(fmt.Sprintf("%s, _ = _gosp_ctx.FindAttribute(%s).(%s)", ident, quote(name), v.TypeName))
		}
	}
}
