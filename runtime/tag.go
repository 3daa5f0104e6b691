package runtime

import "io"

// EvalResult is the value a classic tag handler returns from its lifecycle
// methods to steer body evaluation and page continuation.
type EvalResult int

const (
	SkipBody         EvalResult = 0
	EvalBodyInclude  EvalResult = 1
	EvalBodyBuffered EvalResult = 2
	EvalBodyAgain    EvalResult = 2
	EvalPage         EvalResult = 6
	AbortPage        EvalResult = 5
)

// Tag is the classic tag handler protocol. Handlers receive their context
// and parent before attributes are assigned, then DoStartTag and DoEndTag
// bracket the body.
type Tag interface {
	SetPageContext(ctx *PageContext)
	SetParent(parent Tag)
	Parent() Tag
	DoStartTag() (EvalResult, error)
	DoEndTag() (EvalResult, error)
	Release()
}

// IterationTag re-evaluates its body while DoAfterBody returns
// EvalBodyAgain.
type IterationTag interface {
	Tag
	DoAfterBody() (EvalResult, error)
}

// BodyTag captures its body into a BodyContent when DoStartTag returns
// EvalBodyBuffered.
type BodyTag interface {
	IterationTag
	SetBodyContent(b *BodyContent)
	DoInitBody() error
}

// TryCatchFinally lets a handler observe failures raised inside its body
// and run cleanup regardless of outcome.
type TryCatchFinally interface {
	DoCatch(err error) error
	DoFinally()
}

// SimpleTag is the single-invocation protocol: attributes are assigned,
// then DoTag runs once with the body reachable as a Fragment.
type SimpleTag interface {
	SetContext(ctx *PageContext)
	SetParent(parent any)
	Parent() any
	SetBody(body Fragment)
	DoTag() error
}

// Fragment is a deferred piece of page output that a simple tag may invoke
// zero or more times, optionally redirecting it to w.
type Fragment interface {
	Invoke(w io.Writer) error
}

// DynamicAttributes accepts attributes not declared in the tag's metadata.
type DynamicAttributes interface {
	SetDynamicAttribute(uri, localName string, value any) error
}

// IDConsumer receives a generated id after the declared attributes are
// assigned, so the handler can key off its bound state.
type IDConsumer interface {
	SetID(id string)
}

// Adapt wraps a SimpleTag so it can serve as the parent of a classic Tag.
type Adapt struct {
	Wrapped SimpleTag
	ctx     *PageContext
	parent  Tag
}

func NewAdapt(s SimpleTag) *Adapt { return &Adapt{Wrapped: s} }

func (a *Adapt) SetPageContext(ctx *PageContext) { a.ctx = ctx }
func (a *Adapt) SetParent(parent Tag)            { a.parent = parent }
func (a *Adapt) Parent() Tag                     { return a.parent }
func (a *Adapt) DoStartTag() (EvalResult, error) { return SkipBody, nil }
func (a *Adapt) DoEndTag() (EvalResult, error)   { return EvalPage, nil }
func (a *Adapt) Release()                        {}

// AsTagParent normalizes a parent value for SetParent: simple tags are
// wrapped, classic tags pass through.
func AsTagParent(parent any) Tag {
	switch p := parent.(type) {
	case nil:
		return nil
	case Tag:
		return p
	case SimpleTag:
		return NewAdapt(p)
	default:
		return nil
	}
}
