package runtime

import (
	"fmt"
	"io"

	"github.com/spf13/cast"
)

// ToString renders a value the way page output does: nil is empty, errors
// fall back to fmt.
func ToString(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}

// Print writes a value to w in page-output form.
func Print(w io.Writer, v any) error {
	_, err := io.WriteString(w, ToString(v))
	return err
}

// Runtime casts used when a literal attribute value must become a typed
// setter argument and the conversion could not happen at generation time.

func ToInt(v any) int {
	return mustConvert(cast.ToIntE(v))
}

func ToInt64(v any) int64 {
	return mustConvert(cast.ToInt64E(v))
}

func ToFloat64(v any) float64 {
	return mustConvert(cast.ToFloat64E(v))
}

func ToBool(v any) bool {
	return mustConvert(cast.ToBoolE(v))
}

func mustConvert[T any](v T, err error) T {
	if err != nil {
		panic(&ConvertError{Err: err})
	}
	return v
}

// ConvertError reports a runtime attribute-value conversion failure.
type ConvertError struct {
	Err error
}

func (e *ConvertError) Error() string { return "converting attribute value: " + e.Err.Error() }

func (e *ConvertError) Unwrap() error { return e.Err }
