package tagmeta

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// libraryFile is the YAML shape of a tag library descriptor.
type libraryFile struct {
	Taglib string     `yaml:"taglib"`
	Prefix string     `yaml:"prefix"`
	Tags   []tagEntry `yaml:"tags"`
}

type tagEntry struct {
	Name            string      `yaml:"name"`
	Type            string      `yaml:"type"`
	Import          string      `yaml:"import,omitempty"`
	Simple          bool        `yaml:"simple,omitempty"`
	BodyTag         bool        `yaml:"body_tag,omitempty"`
	Iteration       bool        `yaml:"iteration,omitempty"`
	TryCatchFinally bool        `yaml:"try_catch_finally,omitempty"`
	IDConsumer      bool        `yaml:"id_consumer,omitempty"`
	Dynamic         bool        `yaml:"dynamic,omitempty"`
	Attrs           []attrEntry `yaml:"attrs,omitempty"`
	Vars            []varEntry  `yaml:"vars,omitempty"`
}

type attrEntry struct {
	Name           string `yaml:"name"`
	Required       bool   `yaml:"required,omitempty"`
	RequestTime    bool   `yaml:"request_time,omitempty"`
	Fragment       bool   `yaml:"fragment,omitempty"`
	DeferredValue  bool   `yaml:"deferred_value,omitempty"`
	DeferredMethod bool   `yaml:"deferred_method,omitempty"`
	Type           string `yaml:"type,omitempty"`
}

type varEntry struct {
	Name          string `yaml:"name,omitempty"`
	NameFromAttr  string `yaml:"name_from_attribute,omitempty"`
	Type          string `yaml:"type,omitempty"`
	Declare       *bool  `yaml:"declare,omitempty"`
	Scope         string `yaml:"scope,omitempty"`
}

// LoadLibrary reads one YAML tag library descriptor.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tag library %q: %w", path, err)
	}
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing tag library %q: %w", path, err)
	}
	if f.Prefix == "" {
		return nil, fmt.Errorf("tag library %q: missing prefix", path)
	}

	lib := &Library{Name: f.Taglib, Prefix: f.Prefix}
	for _, e := range f.Tags {
		info, err := e.toTagInfo()
		if err != nil {
			return nil, fmt.Errorf("tag library %q: %w", path, err)
		}
		lib.Tags = append(lib.Tags, info)
	}
	return lib, nil
}

// LoadDir loads every .yaml descriptor under dir into one registry.
func LoadDir(dir string) (*Registry, error) {
	reg := NewRegistry()
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".yaml" {
			return nil
		}
		lib, err := LoadLibrary(path)
		if err != nil {
			return err
		}
		return reg.Add(lib)
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (e *tagEntry) toTagInfo() (*TagInfo, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("tag entry with no name")
	}
	if e.Type == "" {
		return nil, fmt.Errorf("tag %s: missing handler type", e.Name)
	}
	info := &TagInfo{
		Name:            e.Name,
		GoType:          e.Type,
		Import:          e.Import,
		Simple:          e.Simple,
		BodyTag:         e.BodyTag,
		Iteration:       e.Iteration || e.BodyTag,
		TryCatchFinally: e.TryCatchFinally,
		IDConsumer:      e.IDConsumer,
		Dynamic:         e.Dynamic,
	}
	for _, a := range e.Attrs {
		info.Attrs = append(info.Attrs, TagAttr{
			Name:           a.Name,
			Required:       a.Required,
			RequestTime:    a.RequestTime,
			Fragment:       a.Fragment,
			DeferredValue:  a.DeferredValue,
			DeferredMethod: a.DeferredMethod,
			TypeName:       typeOrDefault(a.Type),
		})
	}
	for _, v := range e.Vars {
		if v.Name == "" && v.NameFromAttr == "" {
			return nil, fmt.Errorf("tag %s: variable with neither name nor name_from_attribute", e.Name)
		}
		scope, err := parseScope(v.Scope)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", e.Name, err)
		}
		declare := true
		if v.Declare != nil {
			declare = *v.Declare
		}
		info.Vars = append(info.Vars, TagVar{
			NameGiven:         v.Name,
			NameFromAttribute: v.NameFromAttr,
			TypeName:          typeOrDefault(v.Type),
			Declare:           declare,
			Scope:             scope,
		})
	}
	return info, nil
}

func typeOrDefault(t string) string {
	if t == "" {
		return "any"
	}
	return t
}

func parseScope(s string) (VarScope, error) {
	switch s {
	case "", "nested":
		return Nested, nil
	case "before-body":
		return BeforeBody, nil
	case "after-body":
		return AfterBody, nil
	}
	return 0, fmt.Errorf("unknown variable scope %q", s)
}
