// Package ast defines the template tree handed to the code generator.
//
// The tree is produced by an external parser/validator; this package only
// models it. Node kinds form a closed set: the generator switches over them
// exhaustively, with uninterpreted elements as the passthrough default for
// unknown extensions.
package ast

import (
	"fmt"

	"gosp/tagmeta"
)

// Position identifies a location in a template source file.
type Position struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"col,omitempty"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s(%d,%d)", p.File, p.Line, p.Column)
}

// Node is the base interface for all template tree nodes.
//
// Besides its source position, every node records the first and last line of
// the code generated for it (1-based in the final output; relative and
// 0-based while the node sits in an unspliced buffer). Nodes that produced no
// code keep zero stamps.
type Node interface {
	Position() Position
	GenRange() (begin, end int)
	SetGenBegin(line int)
	SetGenEnd(line int)
	ShiftGen(offset int)

	// InBuffer marks a node whose code was generated into a redirectable
	// buffer; the owning buffer rebases its stamps, so enclosing buffers
	// must leave them alone.
	InBuffer() bool
	SetInBuffer(v bool)
}

type base struct {
	Pos      Position
	genBegin int
	genEnd   int
	inBuffer bool
}

func (b *base) Position() Position   { return b.Pos }
func (b *base) GenRange() (int, int) { return b.genBegin, b.genEnd }
func (b *base) SetGenBegin(line int) { b.genBegin = line }
func (b *base) SetGenEnd(line int)   { b.genEnd = line }
func (b *base) InBuffer() bool       { return b.inBuffer }
func (b *base) SetInBuffer(v bool)   { b.inBuffer = v }

// ShiftGen moves the recorded generated-line stamps by offset. Unstamped
// nodes (no positive begin line) are left untouched.
func (b *base) ShiftGen(offset int) {
	if b.genBegin > 0 {
		b.genBegin += offset
		b.genEnd += offset
	}
}

// NodeList is an ordered list of sibling nodes.
type NodeList struct {
	Nodes []Node
}

// Size returns the number of nodes in the list, tolerating a nil list.
func (l *NodeList) Size() int {
	if l == nil {
		return 0
	}
	return len(l.Nodes)
}

// ChildInfo summarizes a subtree for generation-time decisions (method
// splitting, local variable preludes). It is computed by the generator in a
// collection pass before emission.
type ChildInfo struct {
	HasScripting    bool // scriptlet, expression or declaration anywhere below
	HasScriptingVars bool // some custom tag below declares scripting variables
	HasUseObject    bool
	HasInclude      bool
	HasSetProperty  bool
	HasParam        bool
}

// Scriptless reports whether the subtree contains no raw scripting elements.
func (ci *ChildInfo) Scriptless() bool { return !ci.HasScripting }

// Merge folds a child summary into this one.
func (ci *ChildInfo) Merge(other ChildInfo) {
	ci.HasScripting = ci.HasScripting || other.HasScripting
	ci.HasScriptingVars = ci.HasScriptingVars || other.HasScriptingVars
	ci.HasUseObject = ci.HasUseObject || other.HasUseObject
	ci.HasInclude = ci.HasInclude || other.HasInclude
	ci.HasSetProperty = ci.HasSetProperty || other.HasSetProperty
	ci.HasParam = ci.HasParam || other.HasParam
}

// Root is the top of one template unit.
type Root struct {
	base
	Body *NodeList
	Info ChildInfo
}

// TemplateText is literal markup copied to the output verbatim.
type TemplateText struct {
	base
	Text string

	// Smap holds additional line correspondences for multi-line text: one
	// entry per template newline that advanced the generated output.
	Smap []SmapEntry
}

// SmapEntry maps a source line (relative to the node's first line) to the
// generated line current when that source line was emitted.
type SmapEntry struct {
	SrcOffset int
	GenLine   int
}

// AddSmap records a correspondence for a relative source line at the given
// generated line.
func (n *TemplateText) AddSmap(srcOffset, genLine int) {
	n.Smap = append(n.Smap, SmapEntry{SrcOffset: srcOffset, GenLine: genLine})
}

func (n *TemplateText) ShiftGen(offset int) {
	begin, _ := n.GenRange()
	if begin > 0 {
		for i := range n.Smap {
			n.Smap[i].GenLine += offset
		}
	}
	n.base.ShiftGen(offset)
}

// Expression is a request-time scripting expression whose value is printed.
type Expression struct {
	base
	Text string
}

// Scriptlet is a raw block of scripting statements copied into the render
// flow.
type Scriptlet struct {
	base
	Text string
}

// Declaration is a scripting declaration emitted at file scope, outside the
// render method.
type Declaration struct {
	base
	Text string
}

// ELExpression is an embedded expression-language fragment appearing in
// template text, e.g. ${name}.
type ELExpression struct {
	base
	Type byte // '$' or '#'
	Text string
	MapName string // dialect/function-map reference, empty if none
}

// IncludeAction dispatches a request-time include of another resource.
type IncludeAction struct {
	base
	Page  Attr
	Flush bool
	Body  *NodeList // param actions, possibly with named attributes
}

// ForwardAction abandons the current output and forwards the request.
type ForwardAction struct {
	base
	Page Attr
	Body *NodeList
}

// Param is a name/value pair nested in include/forward bodies.
type Param struct {
	base
	Name  string
	Value Attr
	Body  *NodeList // named attributes supplying the value, if any
}

// UseObject introduces a scoped bean-like object, creating it on demand.
type UseObject struct {
	base
	ID       string
	Scope    string // "page", "request", "session", "application"
	TypeName string // declared reference type, may be empty
	Class    string // concrete constructible type, may be empty
	BeanName *Attr  // instantiate-by-name fallback, may be nil
	Body     *NodeList
	Info     ChildInfo
}

// GetProperty prints a property of a scoped object.
type GetProperty struct {
	base
	Name     string
	Property string
}

// SetProperty assigns a property of a scoped object.
type SetProperty struct {
	base
	Name     string
	Property string // "*" introspects all request parameters
	Param    string
	Value    *Attr // nil when the value comes from a request parameter
}

// InvokeAction invokes a declared fragment attribute of a sub-template unit.
type InvokeAction struct {
	base
	Fragment  string
	Var       string
	VarReader string
	Scope     string
}

// DoBodyAction invokes the body fragment of a sub-template unit.
type DoBodyAction struct {
	base
	Var       string
	VarReader string
	Scope     string
}

// NamedAttribute supplies an attribute value through a nested body.
type NamedAttribute struct {
	base
	Name string
	Omit *Attr // optional omit toggle, used by Element generation
	Body *NodeList
	Info ChildInfo

	// TempVar is the generated temporary holding the evaluated body; the
	// generator assigns it on first use.
	TempVar string
}

// TagBody wraps an explicitly delimited tag body.
type TagBody struct {
	base
	Body *NodeList
	Info ChildInfo
}

// Element writes a dynamically named XML element with runtime-computed
// attributes.
type Element struct {
	base
	Name  Attr
	Attrs []Attr
	Body  *NodeList
}

// UninterpretedTag is markup shaped like an action but owned by no tag
// library; it passes through with its attributes evaluated at render time
// where they are expressions.
type UninterpretedTag struct {
	base
	QName string
	Attrs []Attr
	Body  *NodeList
}

// CustomTag invokes an external tag handler. Tag semantics are fixed by the
// resolver before generation; the generator only annotates the node with
// generation-time bookkeeping (pool name, split-method name).
type CustomTag struct {
	base
	Prefix string
	Name   string

	Attrs []Attr
	Body  *NodeList
	Info  ChildInfo

	// Meta is the resolved tag-library metadata for this tag.
	Meta *tagmeta.TagInfo

	// NestingLevel counts enclosing custom tags of the same name that
	// declare scripting variables; it namespaces the save/restore
	// temporaries.
	NestingLevel int

	// PoolName and MethodName are assigned during generation.
	PoolName   string
	MethodName string

	// Plugin rewrite: when set, the generator splices these subtrees around
	// the normally generated body instead of running the lifecycle protocol.
	UsePlugin   bool
	PluginStart []Node
	PluginEnd   []Node

	// declaredVars memoizes, per variable scope, which scripting variables
	// this call site declares (first declaration wins within a scope chain).
	declaredVars map[tagmeta.VarScope][]*tagmeta.TagVar
}

// QName returns the prefixed tag name.
func (n *CustomTag) QName() string { return n.Prefix + ":" + n.Name }

// HasEmptyBody reports whether the tag has no body content at all.
func (n *CustomTag) HasEmptyBody() bool {
	return n.Body.Size() == 0
}

// NamedAttributeNodes returns the named-attribute children of the tag body.
func (n *CustomTag) NamedAttributeNodes() []*NamedAttribute {
	var out []*NamedAttribute
	if n.Body == nil {
		return nil
	}
	for _, c := range n.Body.Nodes {
		if na, ok := c.(*NamedAttribute); ok {
			out = append(out, na)
		}
	}
	return out
}

// SetDeclaredVars records the scripting variables this call site declares
// for the given scope.
func (n *CustomTag) SetDeclaredVars(scope tagmeta.VarScope, vars []*tagmeta.TagVar) {
	if n.declaredVars == nil {
		n.declaredVars = make(map[tagmeta.VarScope][]*tagmeta.TagVar)
	}
	n.declaredVars[scope] = vars
}

// DeclaredVars returns the scripting variables declared at this call site
// for the given scope.
func (n *CustomTag) DeclaredVars(scope tagmeta.VarScope) []*tagmeta.TagVar {
	return n.declaredVars[scope]
}
