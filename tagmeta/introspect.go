package tagmeta

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"gosp/runtime"
)

// IntrospectionError reports a failure to derive setter metadata from a tag
// handler type.
type IntrospectionError struct {
	TypeName string
	Err      error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspecting tag handler %s: %v", e.TypeName, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// Setter is one writable property of a tag handler.
type Setter struct {
	Method string       // method name in generated source, e.g. "SetItems"
	Param  reflect.Type // parameter type of the setter
}

// Properties is the introspected surface of one tag handler type.
type Properties struct {
	Type    reflect.Type
	Setters map[string]*Setter
}

// Setter returns the setter for the given attribute name, or nil.
func (p *Properties) Setter(attrName string) *Setter {
	return p.Setters[attrName]
}

// PropertiesOf derives the attribute-name to setter mapping for a handler
// type. Attribute "foo" binds to method "SetFoo" taking exactly one
// parameter. Lifecycle setters (SetParent, SetPageContext, SetContext,
// SetBodyContent, SetBody, SetID, SetDynamicAttribute) are not properties.
func PropertiesOf(t reflect.Type) (*Properties, error) {
	if t == nil {
		return nil, &IntrospectionError{TypeName: "<nil>", Err: fmt.Errorf("no handler type")}
	}
	pt := t
	if pt.Kind() != reflect.Pointer {
		pt = reflect.PointerTo(t)
	}
	if pt.Elem().Kind() != reflect.Struct {
		return nil, &IntrospectionError{TypeName: t.String(), Err: fmt.Errorf("handler is not a struct type")}
	}

	props := &Properties{Type: t, Setters: make(map[string]*Setter)}
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if !strings.HasPrefix(m.Name, "Set") || len(m.Name) == 3 {
			continue
		}
		if lifecycleSetters[m.Name] {
			continue
		}
		// Receiver plus exactly one parameter.
		if m.Type.NumIn() != 2 {
			continue
		}
		props.Setters[attrNameOf(m.Name)] = &Setter{
			Method: m.Name,
			Param:  m.Type.In(1),
		}
	}
	return props, nil
}

var lifecycleSetters = map[string]bool{
	"SetParent":           true,
	"SetPageContext":      true,
	"SetContext":          true,
	"SetBodyContent":      true,
	"SetBody":             true,
	"SetID":               true,
	"SetDynamicAttribute": true,
}

// attrNameOf lowers the first rune of the property part of a setter name:
// SetMaxItems -> maxItems.
func attrNameOf(method string) string {
	name := strings.TrimPrefix(method, "Set")
	r := []rune(name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// Interface types used for capability detection.
var (
	tagType             = reflect.TypeOf((*runtime.Tag)(nil)).Elem()
	iterationTagType    = reflect.TypeOf((*runtime.IterationTag)(nil)).Elem()
	bodyTagType         = reflect.TypeOf((*runtime.BodyTag)(nil)).Elem()
	tryCatchFinallyType = reflect.TypeOf((*runtime.TryCatchFinally)(nil)).Elem()
	simpleTagType       = reflect.TypeOf((*runtime.SimpleTag)(nil)).Elem()
	idConsumerType      = reflect.TypeOf((*runtime.IDConsumer)(nil)).Elem()
	dynamicType         = reflect.TypeOf((*runtime.DynamicAttributes)(nil)).Elem()
)

// FromHandler builds tag metadata from a linked handler type, deriving the
// capability set from the interfaces the type satisfies.
func FromHandler(prefix, name, goType, importPath string, handler any) (*TagInfo, error) {
	t := reflect.TypeOf(handler)
	if t == nil {
		return nil, &IntrospectionError{TypeName: "<nil>", Err: fmt.Errorf("nil handler value")}
	}
	if t.Kind() != reflect.Pointer {
		t = reflect.PointerTo(t)
	}
	if !t.Implements(tagType) && !t.Implements(simpleTagType) {
		return nil, &IntrospectionError{TypeName: t.String(), Err: fmt.Errorf("handler satisfies no tag dialect")}
	}
	return &TagInfo{
		Name:            name,
		Prefix:          prefix,
		GoType:          goType,
		Import:          importPath,
		HandlerType:     t,
		Simple:          t.Implements(simpleTagType),
		BodyTag:         t.Implements(bodyTagType),
		Iteration:       t.Implements(iterationTagType),
		TryCatchFinally: t.Implements(tryCatchFinallyType),
		IDConsumer:      t.Implements(idConsumerType),
		Dynamic:         t.Implements(dynamicType),
	}, nil
}
