package runtime

// DeferredValue postpones expression evaluation until a tag handler asks
// for the value, possibly against variables the handler set up itself.
type DeferredValue struct {
	Src string
	ctx *PageContext
}

func NewDeferredValue(ctx *PageContext, src string) *DeferredValue {
	return &DeferredValue{Src: src, ctx: ctx}
}

// Value evaluates the deferred expression against the current environment,
// merging extra variables over the page scopes.
func (d *DeferredValue) Value(extra map[string]any) any {
	if len(extra) == 0 {
		return EvalAny(d.ctx, d.Src)
	}
	env := make(map[string]any, len(extra)+8)
	for k, v := range d.ctx.Env() {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	out, err := run(d.Src, env)
	if err != nil {
		panic(&ExprError{Src: d.Src, Err: err})
	}
	return out
}

// DeferredMethod postpones evaluation of an expression used as an action:
// invoking it evaluates the expression for effect and returns the result.
type DeferredMethod struct {
	DeferredValue
}

func NewDeferredMethod(ctx *PageContext, src string) *DeferredMethod {
	return &DeferredMethod{DeferredValue{Src: src, ctx: ctx}}
}

// Invoke evaluates the deferred expression.
func (d *DeferredMethod) Invoke(extra map[string]any) any {
	return d.Value(extra)
}
