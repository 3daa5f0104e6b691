package tagmeta

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosp/runtime"
)

type loopTag struct {
	ctx    *runtime.PageContext
	parent runtime.Tag
	items  []any
	max    int
}

func (l *loopTag) SetPageContext(ctx *runtime.PageContext) { l.ctx = ctx }
func (l *loopTag) SetParent(p runtime.Tag)                 { l.parent = p }
func (l *loopTag) Parent() runtime.Tag                     { return l.parent }
func (l *loopTag) DoStartTag() (runtime.EvalResult, error) { return runtime.EvalBodyInclude, nil }
func (l *loopTag) DoAfterBody() (runtime.EvalResult, error) {
	return runtime.SkipBody, nil
}
func (l *loopTag) DoEndTag() (runtime.EvalResult, error) { return runtime.EvalPage, nil }
func (l *loopTag) Release()                              {}

func (l *loopTag) SetItems(items []any)  { l.items = items }
func (l *loopTag) SetMaxCount(n int)     { l.max = n }
func (l *loopTag) Set()                  {} // not a property
func (l *loopTag) SetTwo(a, b int)       { _, _ = a, b }

func TestPropertiesOf(t *testing.T) {
	props, err := PropertiesOf(reflect.TypeOf(&loopTag{}))
	require.NoError(t, err)

	items := props.Setter("items")
	require.NotNil(t, items)
	assert.Equal(t, "SetItems", items.Method)
	assert.Equal(t, reflect.Slice, items.Param.Kind())

	max := props.Setter("maxCount")
	require.NotNil(t, max)
	assert.Equal(t, "SetMaxCount", max.Method)
	assert.Equal(t, reflect.Int, max.Param.Kind())

	// Lifecycle and malformed setters are not properties.
	assert.Nil(t, props.Setter("parent"))
	assert.Nil(t, props.Setter("pageContext"))
	assert.Nil(t, props.Setter("two"))
	assert.Nil(t, props.Setter(""))
}

func TestPropertiesOfRejectsNonStruct(t *testing.T) {
	_, err := PropertiesOf(reflect.TypeOf(42))
	require.Error(t, err)
	var ie *IntrospectionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "int", ie.TypeName)
}

func TestFromHandlerCapabilities(t *testing.T) {
	info, err := FromHandler("x", "loop", "demo.LoopTag", "example.com/demo", loopTag{})
	require.NoError(t, err)
	assert.True(t, info.Iteration)
	assert.False(t, info.BodyTag)
	assert.False(t, info.Simple)
	assert.False(t, info.TryCatchFinally)
	assert.Equal(t, "x:loop", info.QName())

	_, err = FromHandler("x", "bad", "demo.Bad", "example.com/demo", struct{}{})
	require.Error(t, err)
}

func TestVarName(t *testing.T) {
	fixed := &TagVar{NameGiven: "row", Scope: Nested}
	name, ok := fixed.VarName(nil)
	require.True(t, ok)
	assert.Equal(t, "row", name)

	fromAttr := &TagVar{NameFromAttribute: "var", Scope: Nested}
	name, ok = fromAttr.VarName(func(attr string) string {
		if attr == "var" {
			return "item"
		}
		return ""
	})
	require.True(t, ok)
	assert.Equal(t, "item", name)

	_, ok = fromAttr.VarName(func(string) string { return "" })
	assert.False(t, ok)
}

const libYAML = `taglib: demo
prefix: x
tags:
  - name: loop
    type: demo.LoopTag
    import: example.com/demo
    iteration: true
    attrs:
      - name: items
        required: true
        request_time: true
        type: "[]any"
      - name: var
        required: true
    vars:
      - name_from_attribute: var
        scope: nested
  - name: catcher
    type: demo.CatcherTag
    import: example.com/demo
    try_catch_finally: true
`

func TestLoadLibrary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(libYAML), 0o644))

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", lib.Name)
	assert.Equal(t, "x", lib.Prefix)
	require.Len(t, lib.Tags, 2)

	loop := lib.Tags[0]
	assert.Equal(t, "loop", loop.Name)
	assert.True(t, loop.Iteration)
	assert.True(t, loop.HasScriptingVars())
	require.NotNil(t, loop.Attr("items"))
	assert.True(t, loop.Attr("items").RequestTime)
	assert.Equal(t, "[]any", loop.Attr("items").TypeName)
	assert.Equal(t, "any", loop.Attr("var").TypeName)
	require.Len(t, loop.Vars, 1)
	assert.Equal(t, Nested, loop.Vars[0].Scope)

	catcher := lib.Tags[1]
	assert.True(t, catcher.TryCatchFinally)
	assert.False(t, catcher.HasScriptingVars())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.yaml"), []byte(libYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	reg, err := LoadDir(dir)
	require.NoError(t, err)

	info := reg.Lookup("x", "loop")
	require.NotNil(t, info)
	assert.Equal(t, "demo.LoopTag", info.GoType)
	assert.Nil(t, reg.Lookup("x", "nope"))
	assert.Nil(t, reg.Lookup("y", "loop"))
}

func TestLoadLibraryErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("taglib: [broken"), 0o644))
	_, err := LoadLibrary(bad)
	require.Error(t, err)

	missingType := filepath.Join(dir, "mt.yaml")
	require.NoError(t, os.WriteFile(missingType, []byte("taglib: d\nprefix: p\ntags:\n  - name: a\n"), 0o644))
	_, err = LoadLibrary(missingType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type")
}
