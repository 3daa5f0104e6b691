package gen

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"gosp/ast"
	"gosp/tagmeta"
)

func testRegistry() *tagmeta.Registry {
	r := tagmeta.NewRegistry()
	r.Register(&tagmeta.TagInfo{
		Prefix: "x", Name: "loop",
		GoType: "demo.LoopTag", Import: "example.com/demo",
		Attrs:     []tagmeta.TagAttr{{Name: "items", TypeName: "string"}},
		Iteration: true,
	})
	r.Register(&tagmeta.TagInfo{
		Prefix: "x", Name: "set",
		GoType: "demo.SetTag", Import: "example.com/demo",
		Attrs: []tagmeta.TagAttr{{Name: "value", TypeName: "string"}},
	})
	r.Register(&tagmeta.TagInfo{
		Prefix: "x", Name: "box",
		GoType: "demo.BoxTag", Import: "example.com/demo",
		Attrs:  []tagmeta.TagAttr{{Name: "title", TypeName: "string"}},
		Simple: true,
	})
	return r
}

func rootOf(nodes ...ast.Node) *ast.Root {
	return &ast.Root{Body: &ast.NodeList{Nodes: nodes}}
}

func mustGenerate(t *testing.T, opts *Options, root *ast.Root) string {
	t.Helper()
	res, err := Generate(opts, root)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return res.Source
}

func wantContains(t *testing.T, src string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(src, w) {
			t.Errorf("generated source missing %q\n%s", w, src)
		}
	}
}

func TestGenerateStaticPage(t *testing.T) {
	root := rootOf(
		&ast.TemplateText{Text: "<html><body>hello</body></html>"},
		&ast.ELExpression{Type: '$', Text: "user.name"},
	)
	src := mustGenerate(t, &Options{PackageName: "index", PageName: "indexPage"}, root)

	wantContains(t, src,
		"package index",
		"type indexPage struct {",
		"func NewIndexPage() *indexPage {",
		"func (p *indexPage) Render(_gosp_ctx *runtime.PageContext) error {",
		"return _gosp_ctx.FinishPage(_gosp_err)",
		"defer runtime.CatchPanic(&_gosp_err)",
		`out.WriteString("<html><body>hello</body></html>")`,
		`runtime.WriteEval(_gosp_ctx, "user.name")`,
	)
	if strings.Contains(src, `"io"`) {
		t.Errorf("io imported without fragments:\n%s", src)
	}
}

func TestGenerateShortTextWritesBytes(t *testing.T) {
	src := mustGenerate(t, &Options{}, rootOf(&ast.TemplateText{Text: "ab\n"}))
	wantContains(t, src,
		"out.WriteByte('a')",
		"out.WriteByte('b')",
		`out.WriteByte('\n')`,
	)
	if strings.Contains(src, "WriteString") {
		t.Errorf("short text should go out byte by byte:\n%s", src)
	}
}

func TestGenerateScriptletEndsItsLine(t *testing.T) {
	root := rootOf(
		&ast.Scriptlet{Text: "count++"},
		&ast.TemplateText{Text: "after the scriptlet"},
	)
	src := mustGenerate(t, &Options{}, root)

	wantContains(t, src, "count++\n")
	for _, line := range strings.Split(src, "\n") {
		if strings.Contains(line, "count++") && strings.TrimLeft(line, "\t") != "count++" {
			t.Errorf("scriptlet shares a line with other source: %q", line)
		}
	}
}

func TestGenerateCharArrays(t *testing.T) {
	text := "chunked template text"
	src := mustGenerate(t, &Options{CharArrays: true}, rootOf(
		&ast.TemplateText{Text: text},
		&ast.TemplateText{Text: text},
	))
	if n := strings.Count(src, "_gosp_text_0 = []byte("); n != 1 {
		t.Errorf("identical chunks declared %d times, want 1\n%s", n, src)
	}
	if n := strings.Count(src, "out.Write(_gosp_text_0)"); n != 2 {
		t.Errorf("chunk written %d times, want 2\n%s", n, src)
	}
}

func TestGenerateCharArraysKeepRunesWhole(t *testing.T) {
	// A two-byte rune straddling the chunk size must move whole into the
	// next chunk instead of being torn at the byte boundary.
	text := strings.Repeat("a", textChunkSize-1) + "étail"
	src := mustGenerate(t, &Options{CharArrays: true}, rootOf(&ast.TemplateText{Text: text}))

	if !utf8.ValidString(src) {
		t.Fatal("generated source is not valid UTF-8")
	}
	wantContains(t, src, "[]byte(\"étail\")", "out.Write(_gosp_text_1)")
}

func TestGenerateDeferredTextPassesThrough(t *testing.T) {
	src := mustGenerate(t, &Options{}, rootOf(&ast.ELExpression{Type: '#', Text: "later"}))
	wantContains(t, src, `out.WriteString("#{later}")`)
	if strings.Contains(src, "WriteEval") {
		t.Errorf("deferred text must not evaluate:\n%s", src)
	}
}

func TestGenerateForward(t *testing.T) {
	fwd := &ast.ForwardAction{
		Page: ast.Attr{Name: "page", Kind: ast.AttrLiteral, Text: "/next.gosp"},
		Body: &ast.NodeList{Nodes: []ast.Node{
			&ast.Param{Name: "id", Value: ast.Attr{Kind: ast.AttrLiteral, Text: "a b"}},
		}},
	}
	src := mustGenerate(t, &Options{}, rootOf(fwd))
	wantContains(t, src,
		`_gosp_ctx.Forward("/next.gosp" + "?id=" + "a+b")`,
		"_gosp_oc = runtime.SkipPage",
	)
}

func TestGenerateIncludeParamSeparators(t *testing.T) {
	inc := &ast.IncludeAction{
		Page:  ast.Attr{Name: "page", Kind: ast.AttrLiteral, Text: "/frag.gosp?v=1"},
		Flush: true,
		Body: &ast.NodeList{Nodes: []ast.Node{
			&ast.Param{Name: "a", Value: ast.Attr{Kind: ast.AttrLiteral, Text: "1"}},
			&ast.Param{Name: "b", Value: ast.Attr{Kind: ast.AttrLiteral, Text: "2"}},
		}},
	}
	src := mustGenerate(t, &Options{}, rootOf(inc))
	wantContains(t, src, `"/frag.gosp?v=1" + "&a=" + "1" + "&b=" + "2", true`)
}

func TestGenerateClassicTagPooled(t *testing.T) {
	ct := tagCall("x", "loop", []string{"items"},
		&ast.Scriptlet{Text: "count++"},
	)
	ct.Attrs[0].Text = "rows"
	src := mustGenerate(t, &Options{Pooling: true, Tags: testRegistry()}, rootOf(ct))

	wantContains(t, src,
		"_gosp_pool_x_loop_items *runtime.TagPool",
		`p._gosp_pool_x_loop_items = cfg.GetPool("_gosp_pool_x_loop_items", func() runtime.Tag { return new(demo.LoopTag) })`,
		"p._gosp_pool_x_loop_items.Get(_gosp_ctx)",
		"_gosp_th_x_loop_0.SetPageContext(_gosp_ctx)",
		"_gosp_th_x_loop_0.SetParent(runtime.AsTagParent(nil))",
		`_gosp_th_x_loop_0.SetItems("rows")`,
		"DoStartTag()",
		"DoAfterBody()",
		"DoEndTag()",
		"p._gosp_pool_x_loop_items.Reuse(_gosp_th_x_loop_0)",
		`"example.com/demo"`,
	)
}

func TestGenerateIDBindingFollowsAttributes(t *testing.T) {
	r := testRegistry()
	r.Register(&tagmeta.TagInfo{
		Prefix: "x", Name: "anchor",
		GoType: "demo.AnchorTag", Import: "example.com/demo",
		Attrs:      []tagmeta.TagAttr{{Name: "value", TypeName: "string"}},
		IDConsumer: true,
	})
	ct := tagCall("x", "anchor", []string{"value"}, &ast.Scriptlet{Text: "count++"})
	ct.Attrs[0].Text = "v"
	src := mustGenerate(t, &Options{Tags: r}, rootOf(ct))

	setID := strings.Index(src, ".SetID(")
	setValue := strings.Index(src, ".SetValue(")
	if setID < 0 || setValue < 0 {
		t.Fatalf("missing SetID or SetValue call:\n%s", src)
	}
	if setID < setValue {
		t.Errorf("SetID emitted before attribute assignment:\n%s", src)
	}
}

func TestGenerateFailsOnBadHandlerIntrospection(t *testing.T) {
	r := testRegistry()
	r.Register(&tagmeta.TagInfo{
		Prefix: "x", Name: "bad",
		GoType: "demo.BadTag", Import: "example.com/demo",
		Attrs:       []tagmeta.TagAttr{{Name: "value", TypeName: "string"}},
		HandlerType: reflect.TypeOf(0),
	})
	ct := tagCall("x", "bad", []string{"value"}, &ast.Scriptlet{Text: "count++"})
	ct.Attrs[0].Text = "v"

	_, err := Generate(&Options{Tags: r}, rootOf(ct))
	var ie *IntrospectionError
	if !errors.As(err, &ie) {
		t.Fatalf("Generate error = %v, want introspection failure", err)
	}
	if ie.Handler != "demo.BadTag" {
		t.Errorf("error names %q, want demo.BadTag", ie.Handler)
	}
}

func TestGenerateScriptlessTagSplitsMethod(t *testing.T) {
	ct := tagCall("x", "set", []string{"value"}, &ast.TemplateText{Text: "body text"})
	ct.Attrs[0].Text = "v"
	src := mustGenerate(t, &Options{Tags: testRegistry(), PageName: "Page"}, rootOf(ct))

	wantContains(t, src,
		"if _gosp_oc, _gosp_err := p._gosp_meth_x_set_0(_gosp_ctx, nil); _gosp_err != nil || _gosp_oc == runtime.SkipPage {",
		"func (p *Page) _gosp_meth_x_set_0(_gosp_ctx *runtime.PageContext, _gosp_parent any) (_gosp_oc runtime.Outcome, _gosp_err error) {",
		"SetParent(runtime.AsTagParent(_gosp_parent))",
	)
}

func TestGenerateSimpleTagBodyFragment(t *testing.T) {
	ct := tagCall("x", "box", []string{"title"}, &ast.TemplateText{Text: "inside the box"})
	ct.Attrs[0].Text = "greetings"
	src := mustGenerate(t, &Options{Tags: testRegistry(), PageName: "Page"}, rootOf(ct))

	wantContains(t, src,
		`"io"`,
		"_gosp_th_x_box_0 := new(demo.BoxTag)",
		"_gosp_th_x_box_0.SetContext(_gosp_ctx)",
		`_gosp_th_x_box_0.SetTitle("greetings")`,
		"_gosp_th_x_box_0.SetBody(newPageHelper(p, 0, _gosp_ctx, _gosp_th_x_box_0))",
		"_gosp_th_x_box_0.DoTag()",
		"type PageHelper struct {",
		"runtime.FragmentBase",
		"func (h *PageHelper) invoke0(out runtime.Writer) (_gosp_oc runtime.Outcome, _gosp_err error) {",
		"func (h *PageHelper) Invoke(w io.Writer) error {",
		"switch h.Discriminator {",
		"_gosp_oc, _gosp_err = h.invoke0(h.Ctx.Out())",
	)
}

func TestGenerateUnknownTag(t *testing.T) {
	ct := tagCall("x", "nope", nil)
	ct.Pos = ast.Position{File: "page.gosp", Line: 4, Column: 2}
	_, err := Generate(&Options{Tags: testRegistry()}, rootOf(ct))
	var se *StaticError
	if !errors.As(err, &se) {
		t.Fatalf("expected StaticError, got %v", err)
	}
	if se.Pos.Line != 4 || !strings.Contains(se.Msg, "x:nope") {
		t.Errorf("error %v lacks position or tag name", se)
	}
}

func TestGenerateUnknownAttribute(t *testing.T) {
	ct := tagCall("x", "set", []string{"bogus"})
	ct.Pos = ast.Position{File: "page.gosp", Line: 7, Column: 1}
	_, err := Generate(&Options{Tags: testRegistry()}, rootOf(ct))
	var se *StaticError
	if !errors.As(err, &se) {
		t.Fatalf("expected StaticError, got %v", err)
	}
	if se.Pos.Line != 7 || !strings.Contains(se.Msg, `"bogus"`) {
		t.Errorf("error %v should name the attribute and its position", se)
	}
}

func TestGenerateNamedAttributeFastPath(t *testing.T) {
	na := &ast.NamedAttribute{
		Name: "value",
		Body: &ast.NodeList{Nodes: []ast.Node{&ast.TemplateText{Text: "plain"}}},
	}
	ct := &ast.CustomTag{
		Prefix: "x", Name: "set",
		Attrs: []ast.Attr{{Name: "value", Kind: ast.AttrNamed, Named: na}},
		Body:  &ast.NodeList{Nodes: []ast.Node{na}},
	}
	src := mustGenerate(t, &Options{Tags: testRegistry()}, rootOf(ct))

	wantContains(t, src, `_gosp_val_1 := "plain"`, "SetValue(_gosp_val_1)")
	if strings.Contains(src, "PushBody") {
		t.Errorf("single-text attribute body should not buffer:\n%s", src)
	}
}

func TestGenerateScriptletRejectedInFragmentUnit(t *testing.T) {
	sc := &ast.Scriptlet{Text: "x := 1"}
	sc.Pos = ast.Position{File: "tag.gosp", Line: 2}
	_, err := Generate(&Options{IsTagFile: true}, rootOf(sc))
	var se *StaticError
	if !errors.As(err, &se) {
		t.Fatalf("expected StaticError, got %v", err)
	}
}

func TestGenerateDeclarationsAtFileScope(t *testing.T) {
	d := &ast.Declaration{Text: "func helperValue() int {\n\treturn 42\n}"}
	src := mustGenerate(t, &Options{PageName: "Page"}, rootOf(
		d,
		&ast.TemplateText{Text: "body content here"},
	))

	declAt := strings.Index(src, "func helperValue() int {")
	structAt := strings.Index(src, "type Page struct {")
	if declAt < 0 || structAt < 0 || declAt > structAt {
		t.Fatalf("declaration not at file scope before the page type:\n%s", src)
	}
	if begin, end := d.GenRange(); begin <= 0 || end < begin {
		t.Errorf("declaration stamped (%d,%d)", begin, end)
	}
}

func TestGenerateTagFileUnit(t *testing.T) {
	info := &tagmeta.TagInfo{
		Name: "greet", Prefix: "my",
		Attrs: []tagmeta.TagAttr{
			{Name: "who", TypeName: "string"},
			{Name: "header", Fragment: true},
		},
	}
	root := rootOf(
		&ast.TemplateText{Text: "greeting goes here"},
		&ast.InvokeAction{Fragment: "header"},
		&ast.DoBodyAction{},
	)
	src := mustGenerate(t, &Options{
		IsTagFile:   true,
		PageName:    "greetTag",
		TagFileInfo: info,
	}, root)

	wantContains(t, src,
		"ctx    *runtime.PageContext",
		"body   runtime.Fragment",
		"header runtime.Fragment",
		"func (p *greetTag) SetContext(ctx *runtime.PageContext) { p.ctx = ctx }",
		"func (p *greetTag) SetWho(v string) { p.who = v }",
		"func (p *greetTag) SetHeader(v runtime.Fragment) { p.header = v }",
		"func (p *greetTag) DoTag() error {",
		"return runtime.AsError(_gosp_oc, _gosp_err)",
		`_gosp_ctx.SetAttribute("who", p.who)`,
		"if p.header != nil {",
		"if p.body != nil {",
	)
	if strings.Contains(src, `SetAttribute("header"`) {
		t.Errorf("fragment attribute published as a page attribute:\n%s", src)
	}
	if strings.Contains(src, "func (p *greetTag) Render(") {
		t.Errorf("fragment unit must not expose a page Render:\n%s", src)
	}
}

func TestGenerateUseObjectSessionLocks(t *testing.T) {
	uo := &ast.UseObject{
		ID: "cart", Scope: "session", Class: "shop.Cart",
		Body: &ast.NodeList{},
	}
	src := mustGenerate(t, &Options{}, rootOf(uo))
	wantContains(t, src,
		"_gosp_ctx.Session.Lock()",
		`cart, _ = _gosp_ctx.GetScopedAttribute("cart", runtime.SessionScope).(*shop.Cart)`,
		"cart = new(shop.Cart)",
		`_gosp_ctx.SetScopedAttribute("cart", cart, runtime.SessionScope)`,
		"_gosp_ctx.Session.Unlock()",
	)
}

func TestGenerateLineMap(t *testing.T) {
	tt := &ast.TemplateText{Text: "a longer piece of template text\nsecond line"}
	tt.Pos = ast.Position{File: "page.gosp", Line: 3}
	res, err := Generate(&Options{SourcePath: "page.gosp", GenLineMap: true}, rootOf(tt))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	lm := res.LineMap
	if lm == nil || len(lm.Mappings) == 0 {
		t.Fatal("expected a populated line map")
	}
	gen := lm.GenLine(3)
	if gen <= 0 {
		t.Fatalf("no generated line for template line 3: %+v", lm.Mappings)
	}
	if src := lm.SrcLine(gen); src != 3 {
		t.Errorf("SrcLine(%d) = %d, want 3", gen, src)
	}

	data, err := lm.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	back, err := UnmarshalLineMap(data)
	if err != nil {
		t.Fatalf("UnmarshalLineMap failed: %v", err)
	}
	if len(back.Mappings) != len(lm.Mappings) || back.Source != lm.Source {
		t.Errorf("round trip lost mappings: %d vs %d", len(back.Mappings), len(lm.Mappings))
	}
}

func TestGeneratePrologAndMetadata(t *testing.T) {
	src := mustGenerate(t, &Options{
		PageName:   "Page",
		Prolog:     "<?xml version=\"1.0\"?>\n",
		ErrorPage:  "/error.gosp",
		BufferSize: 8192,
		Dependencies: map[string]int64{
			"/WEB-INF/tags/greet.gosp": 1700000000,
			"/header.gospf":            1690000000,
		},
	}, rootOf(&ast.TemplateText{Text: "page body goes here"}))

	wantContains(t, src,
		`out.WriteString("<?xml version=\"1.0\"?>\n")`,
		"func (p *Page) Dependencies() map[string]int64 {",
		`"/WEB-INF/tags/greet.gosp": 1700000000,`,
		`"/header.gospf": 1690000000,`,
		`func (p *Page) Imports() []string {`,
		`"gosp/runtime"`,
		`func (p *Page) ErrorPage() string { return "/error.gosp" }`,
		"func (p *Page) BufferSize() int  { return 8192 }",
	)

	// The prolog write precedes the template body.
	if strings.Index(src, `<?xml`) > strings.Index(src, "page body goes here") {
		t.Errorf("prolog emitted after template text:\n%s", src)
	}
}

func TestGenerateStampsFollowSplice(t *testing.T) {
	tt := &ast.TemplateText{Text: "stamped template text"}
	res, err := Generate(&Options{SourcePath: "page.gosp", GenLineMap: true}, rootOf(tt))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	begin, end := tt.GenRange()
	if begin <= 0 || end < begin {
		t.Fatalf("text stamped (%d,%d)", begin, end)
	}
	lines := strings.Split(res.Source, "\n")
	if begin > len(lines) {
		t.Fatalf("stamp %d beyond generated source (%d lines)", begin, len(lines))
	}
	if got := lines[begin-1]; !strings.Contains(got, "WriteString") {
		t.Errorf("stamped line %d is %q, expected the write", begin, got)
	}
}
