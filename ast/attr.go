package ast

// AttrKind discriminates the variants of an attribute value.
type AttrKind int

const (
	// AttrLiteral is a fixed string known at generation time.
	AttrLiteral AttrKind = iota
	// AttrExpression is a raw request-time scripting expression.
	AttrExpression
	// AttrEL is embedded expression-language text.
	AttrEL
	// AttrNamed is a value computed by a named-attribute body.
	AttrNamed
)

func (k AttrKind) String() string {
	switch k {
	case AttrLiteral:
		return "literal"
	case AttrExpression:
		return "expression"
	case AttrEL:
		return "el"
	case AttrNamed:
		return "named"
	}
	return "unknown"
}

// Attr is one attribute of an action or custom tag. Exactly one value
// variant is populated, selected by Kind.
type Attr struct {
	Name    string
	URI     string // namespace, only meaningful for dynamic attributes
	Dynamic bool   // not declared by the tag; routed to SetDynamicAttribute

	Kind  AttrKind
	Text  string          // literal, expression or EL text
	ELMap string          // dialect/function-map reference for AttrEL
	Named *NamedAttribute // body-computed value for AttrNamed
}

// IsLiteral reports whether the attribute is a generation-time constant.
func (a *Attr) IsLiteral() bool { return a.Kind == AttrLiteral }
