package gen

import (
	"gosp/ast"
	"gosp/tagmeta"
)

// collectChildInfo fills the Info summary on every node that carries one.
// The summaries drive method splitting and variable preludes during
// emission.
func collectChildInfo(root *ast.Root) {
	root.Info = summarize(root.Body)
}

func summarize(list *ast.NodeList) ast.ChildInfo {
	var ci ast.ChildInfo
	if list == nil {
		return ci
	}
	for _, n := range list.Nodes {
		switch t := n.(type) {
		case *ast.Scriptlet, *ast.Expression, *ast.Declaration:
			ci.HasScripting = true
		case *ast.UseObject:
			ci.HasUseObject = true
			t.Info = summarize(t.Body)
			ci.Merge(t.Info)
		case *ast.IncludeAction:
			ci.HasInclude = true
			ci.Merge(summarize(t.Body))
		case *ast.SetProperty:
			ci.HasSetProperty = true
		case *ast.Param:
			ci.HasParam = true
			ci.Merge(summarize(t.Body))
		case *ast.CustomTag:
			if t.Meta != nil && t.Meta.HasScriptingVars() {
				ci.HasScriptingVars = true
			}
			t.Info = summarize(t.Body)
			ci.Merge(t.Info)
		case *ast.NamedAttribute:
			t.Info = summarize(t.Body)
			ci.Merge(t.Info)
		case *ast.TagBody:
			t.Info = summarize(t.Body)
			ci.Merge(t.Info)
		default:
			for _, child := range ast.Children(n) {
				ci.Merge(summarize(child))
			}
		}
	}
	return ci
}

// resolveTags binds every custom tag to its library metadata and applies
// plugin rewrites. Unknown tags are static errors.
func resolveTags(root *ast.Root, opts *Options) error {
	var firstErr error
	ast.Walk(root, func(n ast.Node) bool {
		if firstErr != nil {
			return false
		}
		ct, ok := n.(*ast.CustomTag)
		if !ok {
			return true
		}
		if ct.Meta == nil {
			if opts.Tags != nil {
				ct.Meta = opts.Tags.Lookup(ct.Prefix, ct.Name)
			}
			if ct.Meta == nil {
				firstErr = staticErr(ct, "unknown tag %s", ct.QName())
				return false
			}
		}
		if p, ok := opts.Plugins[ct.QName()]; ok {
			ct.UsePlugin = p.Apply(ct)
		}
		return true
	})
	return firstErr
}

// TagPlugin rewrites a well-known tag call into inline code. Apply fills
// the node's plugin subtrees and reports whether the rewrite took.
type TagPlugin interface {
	Apply(n *ast.CustomTag) bool
}

// collectScriptingVars assigns nesting levels and decides, per call site
// and scope, which scripting variables the site declares. A variable
// already declared by an enclosing tag of the same name is not redeclared.
func collectScriptingVars(root *ast.Root) {
	var walk func(list *ast.NodeList, stack []*ast.CustomTag)
	walk = func(list *ast.NodeList, stack []*ast.CustomTag) {
		if list == nil {
			return
		}
		for _, n := range list.Nodes {
			ct, ok := n.(*ast.CustomTag)
			if !ok {
				for _, child := range ast.Children(n) {
					walk(child, stack)
				}
				continue
			}
			level := 0
			declared := make(map[string]bool)
			for _, anc := range stack {
				if anc.QName() == ct.QName() {
					level++
				}
				if anc.Meta == nil {
					continue
				}
				for i := range anc.Meta.Vars {
					if name, ok := varNameAt(anc, &anc.Meta.Vars[i]); ok {
						declared[name] = true
					}
				}
			}
			ct.NestingLevel = level
			if ct.Meta != nil {
				for _, scope := range []tagmeta.VarScope{tagmeta.BeforeBody, tagmeta.Nested, tagmeta.AfterBody} {
					var vars []*tagmeta.TagVar
					for i := range ct.Meta.Vars {
						v := &ct.Meta.Vars[i]
						if v.Scope != scope || !v.Declare {
							continue
						}
						name, ok := varNameAt(ct, v)
						if !ok || declared[name] {
							continue
						}
						vars = append(vars, v)
					}
					ct.SetDeclaredVars(scope, vars)
				}
			}
			walk(ct.Body, append(stack, ct))
		}
	}
	walk(root.Body, nil)
}

// varNameAt resolves a scripting variable's name at a call site from the
// tag's literal attributes.
func varNameAt(ct *ast.CustomTag, v *tagmeta.TagVar) (string, bool) {
	name, ok := v.VarName(func(attr string) string {
		for i := range ct.Attrs {
			a := &ct.Attrs[i]
			if a.Name == attr && a.IsLiteral() {
				return a.Text
			}
		}
		return ""
	})
	return name, ok && name != ""
}

// collectPools assigns pool names to poolable call sites and returns the
// distinct pools in first-use order. Simple tags run as closures and
// id-consuming tags need a fresh handler each time, so neither pools.
func collectPools(root *ast.Root, opts *Options) []string {
	if !opts.Pooling {
		return nil
	}
	var order []string
	seen := make(map[string]bool)
	ast.Walk(root, func(n ast.Node) bool {
		ct, ok := n.(*ast.CustomTag)
		if !ok {
			return true
		}
		if ct.Meta == nil || ct.Meta.Simple || ct.Meta.IDConsumer || ct.UsePlugin {
			return true
		}
		ct.PoolName = poolName(ct)
		if !seen[ct.PoolName] {
			seen[ct.PoolName] = true
			order = append(order, ct.PoolName)
		}
		return true
	})
	return order
}

// collectDeclarations returns the declaration nodes of the unit; they are
// emitted at file scope rather than in the render flow.
func collectDeclarations(root *ast.Root) []*ast.Declaration {
	var out []*ast.Declaration
	ast.Walk(root, func(n ast.Node) bool {
		if d, ok := n.(*ast.Declaration); ok {
			out = append(out, d)
		}
		return true
	})
	return out
}
