package runtime

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// Instantiate constructs a scoped object of the named type from the
// registry. Generated pages call it when the declared class is only known
// by name.
func Instantiate(cfg *Config, typeName string) (any, error) {
	if cfg == nil || cfg.Types == nil {
		return nil, fmt.Errorf("instantiate %s: no type registry", typeName)
	}
	t, ok := cfg.Types.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("instantiate %s: type not registered", typeName)
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflect.New(t).Interface(), nil
}

// CastFailed reports a scoped object whose stored value does not have the
// declared type.
func CastFailed(name, want string) error {
	return fmt.Errorf("scoped object %s is not a %s", name, want)
}

// GetProperty reads a property from a scoped object, using a getter method
// when one exists and falling back to an exported field.
func GetProperty(obj any, property string) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("get property %s: nil object", property)
	}
	v := reflect.ValueOf(obj)
	name := upperFirst(property)
	if m := v.MethodByName("Get" + name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() >= 1 {
		return m.Call(nil)[0].Interface(), nil
	}
	if m := v.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() >= 1 {
		return m.Call(nil)[0].Interface(), nil
	}
	s := reflect.Indirect(v)
	if s.Kind() == reflect.Struct {
		if f := s.FieldByName(name); f.IsValid() {
			return f.Interface(), nil
		}
	}
	return nil, fmt.Errorf("get property %s: %T has no such property", property, obj)
}

// SetProperty assigns v to a property, through a setter method when one
// exists, otherwise to an exported field. The value is coerced to the
// target type.
func SetProperty(obj any, property string, value any) error {
	if obj == nil {
		return fmt.Errorf("set property %s: nil object", property)
	}
	rv := reflect.ValueOf(obj)
	name := upperFirst(property)
	if m := rv.MethodByName("Set" + name); m.IsValid() && m.Type().NumIn() == 1 {
		arg, err := coerce(value, m.Type().In(0))
		if err != nil {
			return fmt.Errorf("set property %s: %w", property, err)
		}
		m.Call([]reflect.Value{arg})
		return nil
	}
	s := reflect.Indirect(rv)
	if s.Kind() == reflect.Struct {
		if f := s.FieldByName(name); f.IsValid() && f.CanSet() {
			arg, err := coerce(value, f.Type())
			if err != nil {
				return fmt.Errorf("set property %s: %w", property, err)
			}
			f.Set(arg)
			return nil
		}
	}
	return fmt.Errorf("set property %s: %T has no such property", property, obj)
}

// SetPropertiesFromRequest assigns every request parameter whose name
// matches a settable property, the wildcard form of property assignment.
// Missing parameters and unmatched names are skipped; empty values leave
// the property untouched.
func SetPropertiesFromRequest(ctx *PageContext, obj any) error {
	if ctx.Request == nil {
		return nil
	}
	if err := ctx.Request.ParseForm(); err != nil {
		return err
	}
	for name, vs := range ctx.Request.Form {
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		if hasProperty(obj, name) {
			if err := SetProperty(obj, name, vs[0]); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetPropertyFromParam assigns a single request parameter to a property,
// skipping when the parameter is absent or empty.
func SetPropertyFromParam(ctx *PageContext, obj any, property, param string) error {
	if ctx.Request == nil {
		return nil
	}
	v := ctx.Request.FormValue(param)
	if v == "" {
		return nil
	}
	return SetProperty(obj, property, v)
}

func hasProperty(obj any, property string) bool {
	rv := reflect.ValueOf(obj)
	name := upperFirst(property)
	if m := rv.MethodByName("Set" + name); m.IsValid() && m.Type().NumIn() == 1 {
		return true
	}
	s := reflect.Indirect(rv)
	return s.Kind() == reflect.Struct && s.FieldByName(name).IsValid()
}

func coerce(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(target) && target.Kind() != reflect.String {
		return rv.Convert(target), nil
	}
	var (
		out any
		err error
	)
	switch target.Kind() {
	case reflect.String:
		out, err = cast.ToStringE(value)
	case reflect.Int:
		out, err = cast.ToIntE(value)
	case reflect.Int64:
		out, err = cast.ToInt64E(value)
	case reflect.Float64:
		out, err = cast.ToFloat64E(value)
	case reflect.Bool:
		out, err = cast.ToBoolE(value)
	default:
		return reflect.Value{}, fmt.Errorf("cannot coerce %T to %s", value, target)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(out).Convert(target), nil
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
