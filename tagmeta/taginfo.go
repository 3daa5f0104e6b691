// Package tagmeta describes tag libraries: the handler type, capability set,
// declared attributes and scripting variables of every custom tag the
// generator may encounter. Metadata comes either from YAML descriptors or
// from handler types registered directly by the host.
package tagmeta

import (
	"fmt"
	"reflect"
)

// VarScope is the lifecycle phase in which a scripting variable is visible.
type VarScope int

const (
	// BeforeBody variables are declared before the tag body and survive it.
	BeforeBody VarScope = iota
	// Nested variables exist only inside the tag body.
	Nested
	// AfterBody variables are declared after the tag completes.
	AfterBody
)

func (s VarScope) String() string {
	switch s {
	case BeforeBody:
		return "before-body"
	case Nested:
		return "nested"
	case AfterBody:
		return "after-body"
	}
	return "unknown"
}

// TagVar declares one scripting variable exposed by a tag.
type TagVar struct {
	// NameGiven is the fixed variable name; empty if the name comes from an
	// attribute value at the call site.
	NameGiven         string
	NameFromAttribute string
	TypeName          string // Go type of the variable in generated code
	Declare           bool   // whether the generator declares the variable
	Scope             VarScope
}

// VarName resolves the variable name at a call site. attrValue looks up the
// literal value of an attribute by name. The second result is false for
// aliases (both NameGiven and NameFromAttribute set), which are not declared
// at the call site.
func (v *TagVar) VarName(attrValue func(string) string) (string, bool) {
	if v.NameGiven != "" {
		if v.NameFromAttribute != "" {
			return "", false
		}
		return v.NameGiven, true
	}
	return attrValue(v.NameFromAttribute), true
}

// TagAttr declares one attribute accepted by a tag.
type TagAttr struct {
	Name           string
	Required       bool
	RequestTime    bool   // value may be a request-time expression
	Fragment       bool   // value is a deferred body closure
	DeferredValue  bool
	DeferredMethod bool
	TypeName       string // expected Go type of the setter parameter
}

// TagInfo is the resolved metadata for one tag within a library.
type TagInfo struct {
	Name   string
	Prefix string

	// GoType is the handler type as written in generated source, e.g.
	// "shop.CartTag"; Import is the package that provides it.
	GoType string
	Import string

	// HandlerType, when the handler is linked into the generating process,
	// allows setter introspection and capability detection by reflection.
	HandlerType reflect.Type

	Attrs []TagAttr
	Vars  []TagVar

	// Capability set.
	Simple          bool // closure-dialect handler
	BodyTag         bool // buffers its body
	Iteration       bool // may re-evaluate its body
	TryCatchFinally bool // wants catch/finally lifecycle calls
	IDConsumer      bool // receives a unique id; never pooled
	Dynamic         bool // accepts undeclared attributes
}

// Attr returns the declared attribute with the given name, or nil.
func (t *TagInfo) Attr(name string) *TagAttr {
	for i := range t.Attrs {
		if t.Attrs[i].Name == name {
			return &t.Attrs[i]
		}
	}
	return nil
}

// QName returns the prefixed tag name.
func (t *TagInfo) QName() string { return t.Prefix + ":" + t.Name }

// HasScriptingVars reports whether the tag declares any scripting variables.
func (t *TagInfo) HasScriptingVars() bool { return len(t.Vars) > 0 }

// Library is one tag library: a prefix and its tags.
type Library struct {
	Name   string
	Prefix string
	Tags   []*TagInfo
}

// Registry resolves prefix:name pairs to tag metadata.
type Registry struct {
	tags map[string]*TagInfo
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tags: make(map[string]*TagInfo)}
}

// Add registers every tag of the library, keyed by prefix:name.
func (r *Registry) Add(lib *Library) error {
	for _, t := range lib.Tags {
		t.Prefix = lib.Prefix
		key := t.QName()
		if _, dup := r.tags[key]; dup {
			return fmt.Errorf("duplicate tag %s in library %s", key, lib.Name)
		}
		r.tags[key] = t
	}
	return nil
}

// Register adds a single tag directly.
func (r *Registry) Register(t *TagInfo) {
	r.tags[t.QName()] = t
}

// Lookup returns the metadata for prefix:name, or nil if unknown.
func (r *Registry) Lookup(prefix, name string) *TagInfo {
	return r.tags[prefix+":"+name]
}
