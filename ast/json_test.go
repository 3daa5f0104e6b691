package ast

import (
	"strings"
	"testing"
)

func sampleTree() *Root {
	text := &TemplateText{Text: "<p>hello</p>"}
	text.Pos = Position{File: "page.gosp", Line: 1, Column: 1}

	el := &ELExpression{Type: '$', Text: "user.name"}
	el.Pos = Position{File: "page.gosp", Line: 1, Column: 12}

	na := &NamedAttribute{
		Name: "value",
		Body: &NodeList{Nodes: []Node{&TemplateText{Text: "v"}}},
	}
	tag := &CustomTag{
		Prefix: "x", Name: "set",
		Attrs: []Attr{
			{Name: "value", Kind: AttrNamed, Named: na},
			{Name: "scope", Kind: AttrLiteral, Text: "page"},
		},
		Body: &NodeList{Nodes: []Node{na}},
	}
	tag.Pos = Position{File: "page.gosp", Line: 2, Column: 1}

	inc := &IncludeAction{
		Page:  Attr{Name: "page", Kind: AttrEL, Text: "target"},
		Flush: true,
		Body: &NodeList{Nodes: []Node{
			&Param{Name: "id", Value: Attr{Kind: AttrLiteral, Text: "7"}},
		}},
	}

	uo := &UseObject{
		ID: "cart", Scope: "session", Class: "shop.Cart",
		Body: &NodeList{},
	}

	return &Root{Body: &NodeList{Nodes: []Node{text, el, tag, inc, uo}}}
}

func TestMarshalRootRoundTrip(t *testing.T) {
	data, err := MarshalRoot(sampleTree())
	if err != nil {
		t.Fatalf("MarshalRoot failed: %v", err)
	}
	back, err := UnmarshalRoot(data)
	if err != nil {
		t.Fatalf("UnmarshalRoot failed: %v", err)
	}

	if back.Body.Size() != 5 {
		t.Fatalf("round trip kept %d children, want 5", back.Body.Size())
	}

	text, ok := back.Body.Nodes[0].(*TemplateText)
	if !ok || text.Text != "<p>hello</p>" {
		t.Errorf("first child = %#v", back.Body.Nodes[0])
	}
	if text.Position().Line != 1 || text.Position().File != "page.gosp" {
		t.Errorf("position lost: %v", text.Position())
	}

	el, ok := back.Body.Nodes[1].(*ELExpression)
	if !ok || el.Type != '$' || el.Text != "user.name" {
		t.Errorf("el child = %#v", back.Body.Nodes[1])
	}

	tag, ok := back.Body.Nodes[2].(*CustomTag)
	if !ok || tag.QName() != "x:set" || len(tag.Attrs) != 2 {
		t.Fatalf("tag child = %#v", back.Body.Nodes[2])
	}
	if tag.Attrs[0].Kind != AttrNamed || tag.Attrs[0].Named == nil {
		t.Errorf("named attribute lost: %+v", tag.Attrs[0])
	}
	if tag.Attrs[1].Text != "page" || !tag.Attrs[1].IsLiteral() {
		t.Errorf("literal attribute lost: %+v", tag.Attrs[1])
	}

	inc, ok := back.Body.Nodes[3].(*IncludeAction)
	if !ok || !inc.Flush || inc.Page.Kind != AttrEL {
		t.Errorf("include child = %#v", back.Body.Nodes[3])
	}
	if inc.Body.Size() != 1 {
		t.Errorf("include params lost")
	}

	uo, ok := back.Body.Nodes[4].(*UseObject)
	if !ok || uo.ID != "cart" || uo.Scope != "session" || uo.Class != "shop.Cart" {
		t.Errorf("useObject child = %#v", back.Body.Nodes[4])
	}
}

func TestUnmarshalRootRejectsNonRoot(t *testing.T) {
	_, err := UnmarshalRoot([]byte(`{"kind":"text","text":"x"}`))
	if err == nil || !strings.Contains(err.Error(), "expected") {
		t.Errorf("expected top-level kind error, got %v", err)
	}
}

func TestUnmarshalRootRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalRoot([]byte(`{"kind":"root","body":[{"kind":"mystery"}]}`))
	if err == nil || !strings.Contains(err.Error(), "mystery") {
		t.Errorf("expected unknown kind error, got %v", err)
	}
}

func TestMarshalOmitsBookkeeping(t *testing.T) {
	root := sampleTree()
	root.Body.Nodes[0].SetGenBegin(10)
	root.Body.Nodes[0].SetGenEnd(12)
	data, err := MarshalRoot(root)
	if err != nil {
		t.Fatalf("MarshalRoot failed: %v", err)
	}
	if strings.Contains(string(data), "genBegin") {
		t.Error("line stamps leaked into the exchange form")
	}

	back, err := UnmarshalRoot(data)
	if err != nil {
		t.Fatalf("UnmarshalRoot failed: %v", err)
	}
	if begin, _ := back.Body.Nodes[0].GenRange(); begin != 0 {
		t.Errorf("decoded node carries stamp %d", begin)
	}
}
