package gen

import (
	"testing"

	"gosp/ast"
)

func TestMakeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"camelCase9", "camelCase9"},
		{"with_underscore", "with_underscore"},
		{"dash-name", "dash_002dname"},
		{"dot.name", "dot_002ename"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := makeIdentifier(tt.in); got != tt.want {
			t.Errorf("makeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func tagCall(prefix, name string, attrs []string, body ...ast.Node) *ast.CustomTag {
	ct := &ast.CustomTag{Prefix: prefix, Name: name, Body: &ast.NodeList{Nodes: body}}
	for _, a := range attrs {
		ct.Attrs = append(ct.Attrs, ast.Attr{Name: a, Kind: ast.AttrLiteral})
	}
	return ct
}

func TestPoolName(t *testing.T) {
	body := &ast.TemplateText{Text: "x"}

	withBody := poolName(tagCall("x", "loop", []string{"begin", "end"}, body))
	if withBody != "_gosp_pool_x_loop_end_begin" {
		t.Errorf("pool name %q, attribute names should sort reversed", withBody)
	}

	empty := poolName(tagCall("x", "loop", []string{"begin", "end"}))
	if empty != "_gosp_pool_x_loop_end_begin_nobody" {
		t.Errorf("bodyless pool name %q, expected _nobody suffix", empty)
	}

	// Attribute order at the call site does not matter.
	reordered := poolName(tagCall("x", "loop", []string{"end", "begin"}, body))
	if reordered != withBody {
		t.Errorf("same attribute set named two pools: %q vs %q", withBody, reordered)
	}

	other := poolName(tagCall("x", "loop", []string{"begin"}, body))
	if other == withBody {
		t.Errorf("different attribute sets shared pool %q", other)
	}
}

func TestTagVarNames(t *testing.T) {
	names := newTagVarNames()
	tests := []struct {
		prefix, name string
		want         string
	}{
		{"x", "loop", "_gosp_th_x_loop_0"},
		{"x", "loop", "_gosp_th_x_loop_1"},
		{"y", "loop", "_gosp_th_y_loop_0"},
		{"x", "item", "_gosp_th_x_item_0"},
		{"x", "loop", "_gosp_th_x_loop_2"},
	}
	for _, tt := range tests {
		if got := names.next(tt.prefix, tt.name); got != tt.want {
			t.Errorf("next(%s, %s) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestQuoteByte(t *testing.T) {
	tests := []struct {
		in   byte
		want string
	}{
		{'a', "'a'"},
		{'\n', `'\n'`},
		{'\t', `'\t'`},
		{'\'', `'\''`},
		{'\\', `'\\'`},
	}
	for _, tt := range tests {
		if got := quoteByte(tt.in); got != tt.want {
			t.Errorf("quoteByte(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQuoteRoundTrips(t *testing.T) {
	tests := []string{
		"plain",
		`with "quotes"`,
		"line\nbreak\ttab",
		`back\slash`,
	}
	for _, in := range tests {
		q := quote(in)
		if q[0] != '"' || q[len(q)-1] != '"' {
			t.Errorf("quote(%q) = %s, not a string literal", in, q)
		}
	}
	if got := quote("a\"b"); got != `"a\"b"` {
		t.Errorf("quote escaped to %s", got)
	}
}
