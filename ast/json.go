package ast

import (
	"fmt"

	"github.com/goccy/go-json"
)

// The wire form of a template tree: one object per node, discriminated by
// "kind". The parser emits it, the generator CLI reads it back. Generation
// bookkeeping (line stamps, pool names, resolved metadata) is not part of
// the exchange; it is recomputed on every run.

const (
	kindRoot           = "root"
	kindText           = "text"
	kindExpression     = "expression"
	kindScriptlet      = "scriptlet"
	kindDeclaration    = "declaration"
	kindEL             = "el"
	kindInclude        = "include"
	kindForward        = "forward"
	kindParam          = "param"
	kindUseObject      = "useObject"
	kindGetProperty    = "getProperty"
	kindSetProperty    = "setProperty"
	kindInvoke         = "invoke"
	kindDoBody         = "doBody"
	kindNamedAttribute = "namedAttribute"
	kindTagBody        = "tagBody"
	kindElement        = "element"
	kindUninterpreted  = "uninterpreted"
	kindCustomTag      = "customTag"
)

type jsonNode struct {
	Kind string   `json:"kind"`
	Pos  Position `json:"pos"`

	Text     string `json:"text,omitempty"`
	ELType   string `json:"elType,omitempty"`
	MapName  string `json:"mapName,omitempty"`
	Name     string `json:"name,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	ID       string `json:"id,omitempty"`
	Scope    string `json:"scope,omitempty"`
	TypeName string `json:"type,omitempty"`
	Class    string `json:"class,omitempty"`
	Property string `json:"property,omitempty"`
	Param    string `json:"param,omitempty"`
	Fragment string `json:"fragment,omitempty"`
	Var      string `json:"var,omitempty"`
	VarRead  string `json:"varReader,omitempty"`
	Flush    bool   `json:"flush,omitempty"`

	Page     *jsonAttr   `json:"page,omitempty"`
	Value    *jsonAttr   `json:"value,omitempty"`
	BeanName *jsonAttr   `json:"beanName,omitempty"`
	Omit     *jsonAttr   `json:"omit,omitempty"`
	NameAttr *jsonAttr   `json:"nameAttr,omitempty"`
	Attrs    []jsonAttr  `json:"attrs,omitempty"`
	Body     []*jsonNode `json:"body,omitempty"`
}

type jsonAttr struct {
	Name    string    `json:"name,omitempty"`
	URI     string    `json:"uri,omitempty"`
	Dynamic bool      `json:"dynamic,omitempty"`
	Kind    string    `json:"kind,omitempty"` // "", "expression", "el", "named"
	Text    string    `json:"text,omitempty"`
	ELMap   string    `json:"elMap,omitempty"`
	Named   *jsonNode `json:"named,omitempty"`
}

// MarshalRoot renders a template tree in the exchange form.
func MarshalRoot(root *Root) ([]byte, error) {
	n, err := encodeNode(root)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(n, "", "  ")
}

// UnmarshalRoot reads a template tree back from the exchange form.
func UnmarshalRoot(data []byte) (*Root, error) {
	var jn jsonNode
	if err := json.Unmarshal(data, &jn); err != nil {
		return nil, err
	}
	if jn.Kind != kindRoot {
		return nil, fmt.Errorf("top-level node is %q, expected %q", jn.Kind, kindRoot)
	}
	n, err := decodeNode(&jn)
	if err != nil {
		return nil, err
	}
	return n.(*Root), nil
}

func encodeList(list *NodeList) ([]*jsonNode, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]*jsonNode, 0, len(list.Nodes))
	for _, c := range list.Nodes {
		jn, err := encodeNode(c)
		if err != nil {
			return nil, err
		}
		out = append(out, jn)
	}
	return out, nil
}

func encodeAttr(a *Attr) (*jsonAttr, error) {
	if a == nil {
		return nil, nil
	}
	ja := &jsonAttr{
		Name:    a.Name,
		URI:     a.URI,
		Dynamic: a.Dynamic,
		Text:    a.Text,
		ELMap:   a.ELMap,
	}
	switch a.Kind {
	case AttrLiteral:
	case AttrExpression:
		ja.Kind = "expression"
	case AttrEL:
		ja.Kind = "el"
	case AttrNamed:
		ja.Kind = "named"
		if a.Named != nil {
			n, err := encodeNode(a.Named)
			if err != nil {
				return nil, err
			}
			ja.Named = n
		}
	}
	return ja, nil
}

func encodeAttrs(attrs []Attr) ([]jsonAttr, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	out := make([]jsonAttr, 0, len(attrs))
	for i := range attrs {
		ja, err := encodeAttr(&attrs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *ja)
	}
	return out, nil
}

func encodeNode(n Node) (*jsonNode, error) {
	jn := &jsonNode{Pos: n.Position()}
	var err error
	switch t := n.(type) {
	case *Root:
		jn.Kind = kindRoot
		jn.Body, err = encodeList(t.Body)
	case *TemplateText:
		jn.Kind = kindText
		jn.Text = t.Text
	case *Expression:
		jn.Kind = kindExpression
		jn.Text = t.Text
	case *Scriptlet:
		jn.Kind = kindScriptlet
		jn.Text = t.Text
	case *Declaration:
		jn.Kind = kindDeclaration
		jn.Text = t.Text
	case *ELExpression:
		jn.Kind = kindEL
		jn.ELType = string(t.Type)
		jn.Text = t.Text
		jn.MapName = t.MapName
	case *IncludeAction:
		jn.Kind = kindInclude
		jn.Flush = t.Flush
		if jn.Page, err = encodeAttr(&t.Page); err == nil {
			jn.Body, err = encodeList(t.Body)
		}
	case *ForwardAction:
		jn.Kind = kindForward
		if jn.Page, err = encodeAttr(&t.Page); err == nil {
			jn.Body, err = encodeList(t.Body)
		}
	case *Param:
		jn.Kind = kindParam
		jn.Name = t.Name
		if jn.Value, err = encodeAttr(&t.Value); err == nil {
			jn.Body, err = encodeList(t.Body)
		}
	case *UseObject:
		jn.Kind = kindUseObject
		jn.ID = t.ID
		jn.Scope = t.Scope
		jn.TypeName = t.TypeName
		jn.Class = t.Class
		if jn.BeanName, err = encodeAttr(t.BeanName); err == nil {
			jn.Body, err = encodeList(t.Body)
		}
	case *GetProperty:
		jn.Kind = kindGetProperty
		jn.Name = t.Name
		jn.Property = t.Property
	case *SetProperty:
		jn.Kind = kindSetProperty
		jn.Name = t.Name
		jn.Property = t.Property
		jn.Param = t.Param
		jn.Value, err = encodeAttr(t.Value)
	case *InvokeAction:
		jn.Kind = kindInvoke
		jn.Fragment = t.Fragment
		jn.Var = t.Var
		jn.VarRead = t.VarReader
		jn.Scope = t.Scope
	case *DoBodyAction:
		jn.Kind = kindDoBody
		jn.Var = t.Var
		jn.VarRead = t.VarReader
		jn.Scope = t.Scope
	case *NamedAttribute:
		jn.Kind = kindNamedAttribute
		jn.Name = t.Name
		if jn.Omit, err = encodeAttr(t.Omit); err == nil {
			jn.Body, err = encodeList(t.Body)
		}
	case *TagBody:
		jn.Kind = kindTagBody
		jn.Body, err = encodeList(t.Body)
	case *Element:
		jn.Kind = kindElement
		if jn.NameAttr, err = encodeAttr(&t.Name); err == nil {
			if jn.Attrs, err = encodeAttrs(t.Attrs); err == nil {
				jn.Body, err = encodeList(t.Body)
			}
		}
	case *UninterpretedTag:
		jn.Kind = kindUninterpreted
		jn.Name = t.QName
		if jn.Attrs, err = encodeAttrs(t.Attrs); err == nil {
			jn.Body, err = encodeList(t.Body)
		}
	case *CustomTag:
		jn.Kind = kindCustomTag
		jn.Prefix = t.Prefix
		jn.Name = t.Name
		if jn.Attrs, err = encodeAttrs(t.Attrs); err == nil {
			jn.Body, err = encodeList(t.Body)
		}
	default:
		return nil, fmt.Errorf("node kind %T has no exchange form", n)
	}
	if err != nil {
		return nil, err
	}
	return jn, nil
}

func decodeList(body []*jsonNode) (*NodeList, error) {
	list := &NodeList{}
	for _, jn := range body {
		n, err := decodeNode(jn)
		if err != nil {
			return nil, err
		}
		list.Nodes = append(list.Nodes, n)
	}
	return list, nil
}

func decodeAttr(ja *jsonAttr) (*Attr, error) {
	if ja == nil {
		return nil, nil
	}
	a := &Attr{
		Name:    ja.Name,
		URI:     ja.URI,
		Dynamic: ja.Dynamic,
		Text:    ja.Text,
		ELMap:   ja.ELMap,
	}
	switch ja.Kind {
	case "":
		a.Kind = AttrLiteral
	case "expression":
		a.Kind = AttrExpression
	case "el":
		a.Kind = AttrEL
	case "named":
		a.Kind = AttrNamed
		if ja.Named != nil {
			n, err := decodeNode(ja.Named)
			if err != nil {
				return nil, err
			}
			na, ok := n.(*NamedAttribute)
			if !ok {
				return nil, fmt.Errorf("attribute %s: named value is %T", ja.Name, n)
			}
			a.Named = na
		}
	default:
		return nil, fmt.Errorf("attribute %s: unknown kind %q", ja.Name, ja.Kind)
	}
	return a, nil
}

func decodeAttrs(jas []jsonAttr) ([]Attr, error) {
	if len(jas) == 0 {
		return nil, nil
	}
	out := make([]Attr, 0, len(jas))
	for i := range jas {
		a, err := decodeAttr(&jas[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func decodeNode(jn *jsonNode) (Node, error) {
	var (
		n   Node
		err error
	)
	switch jn.Kind {
	case kindRoot:
		t := &Root{}
		t.Body, err = decodeList(jn.Body)
		n = t
	case kindText:
		n = &TemplateText{Text: jn.Text}
	case kindExpression:
		n = &Expression{Text: jn.Text}
	case kindScriptlet:
		n = &Scriptlet{Text: jn.Text}
	case kindDeclaration:
		n = &Declaration{Text: jn.Text}
	case kindEL:
		t := &ELExpression{Text: jn.Text, MapName: jn.MapName, Type: '$'}
		if jn.ELType != "" {
			t.Type = jn.ELType[0]
		}
		n = t
	case kindInclude:
		t := &IncludeAction{Flush: jn.Flush}
		var page *Attr
		if page, err = decodeAttr(jn.Page); err == nil && page != nil {
			t.Page = *page
		}
		if err == nil {
			t.Body, err = decodeList(jn.Body)
		}
		n = t
	case kindForward:
		t := &ForwardAction{}
		var page *Attr
		if page, err = decodeAttr(jn.Page); err == nil && page != nil {
			t.Page = *page
		}
		if err == nil {
			t.Body, err = decodeList(jn.Body)
		}
		n = t
	case kindParam:
		t := &Param{Name: jn.Name}
		var value *Attr
		if value, err = decodeAttr(jn.Value); err == nil && value != nil {
			t.Value = *value
		}
		if err == nil {
			t.Body, err = decodeList(jn.Body)
		}
		n = t
	case kindUseObject:
		t := &UseObject{ID: jn.ID, Scope: jn.Scope, TypeName: jn.TypeName, Class: jn.Class}
		if t.BeanName, err = decodeAttr(jn.BeanName); err == nil {
			t.Body, err = decodeList(jn.Body)
		}
		n = t
	case kindGetProperty:
		n = &GetProperty{Name: jn.Name, Property: jn.Property}
	case kindSetProperty:
		t := &SetProperty{Name: jn.Name, Property: jn.Property, Param: jn.Param}
		t.Value, err = decodeAttr(jn.Value)
		n = t
	case kindInvoke:
		n = &InvokeAction{Fragment: jn.Fragment, Var: jn.Var, VarReader: jn.VarRead, Scope: jn.Scope}
	case kindDoBody:
		n = &DoBodyAction{Var: jn.Var, VarReader: jn.VarRead, Scope: jn.Scope}
	case kindNamedAttribute:
		t := &NamedAttribute{Name: jn.Name}
		if t.Omit, err = decodeAttr(jn.Omit); err == nil {
			t.Body, err = decodeList(jn.Body)
		}
		n = t
	case kindTagBody:
		t := &TagBody{}
		t.Body, err = decodeList(jn.Body)
		n = t
	case kindElement:
		t := &Element{}
		var name *Attr
		if name, err = decodeAttr(jn.NameAttr); err == nil && name != nil {
			t.Name = *name
		}
		if err == nil {
			if t.Attrs, err = decodeAttrs(jn.Attrs); err == nil {
				t.Body, err = decodeList(jn.Body)
			}
		}
		n = t
	case kindUninterpreted:
		t := &UninterpretedTag{QName: jn.Name}
		if t.Attrs, err = decodeAttrs(jn.Attrs); err == nil {
			t.Body, err = decodeList(jn.Body)
		}
		n = t
	case kindCustomTag:
		t := &CustomTag{Prefix: jn.Prefix, Name: jn.Name}
		if t.Attrs, err = decodeAttrs(jn.Attrs); err == nil {
			t.Body, err = decodeList(jn.Body)
		}
		n = t
	default:
		return nil, fmt.Errorf("unknown node kind %q", jn.Kind)
	}
	if err != nil {
		return nil, err
	}
	setPos(n, jn.Pos)
	return n, nil
}

func setPos(n Node, pos Position) {
	switch t := n.(type) {
	case *Root:
		t.Pos = pos
	case *TemplateText:
		t.Pos = pos
	case *Expression:
		t.Pos = pos
	case *Scriptlet:
		t.Pos = pos
	case *Declaration:
		t.Pos = pos
	case *ELExpression:
		t.Pos = pos
	case *IncludeAction:
		t.Pos = pos
	case *ForwardAction:
		t.Pos = pos
	case *Param:
		t.Pos = pos
	case *UseObject:
		t.Pos = pos
	case *GetProperty:
		t.Pos = pos
	case *SetProperty:
		t.Pos = pos
	case *InvokeAction:
		t.Pos = pos
	case *DoBodyAction:
		t.Pos = pos
	case *NamedAttribute:
		t.Pos = pos
	case *TagBody:
		t.Pos = pos
	case *Element:
		t.Pos = pos
	case *UninterpretedTag:
		t.Pos = pos
	case *CustomTag:
		t.Pos = pos
	}
}
