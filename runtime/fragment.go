package runtime

import (
	"fmt"
	"strings"
)

// FragmentBase carries the state shared by every generated fragment helper:
// which body it stands for, the page context, and the parent handler the
// body's tags see.
type FragmentBase struct {
	Discriminator int
	Ctx           *PageContext
	Parent        any
}

// WrapFragmentError tags a failure with the fragment it came from.
// ErrSkipPage passes through unwrapped so dispatch can still recognize it.
func WrapFragmentError(discriminator int, err error) error {
	if err == nil || err == ErrSkipPage {
		return err
	}
	return fmt.Errorf("body fragment %d: %w", discriminator, err)
}

// InvokeToString runs a fragment with its output captured into a string,
// used when an invocation stores its result in a scoped variable.
func InvokeToString(f Fragment) (string, error) {
	var sb strings.Builder
	err := f.Invoke(&sb)
	return sb.String(), err
}

// NewStringReader wraps a captured fragment result for reader-typed
// invocation variables.
func NewStringReader(s string) *strings.Reader { return strings.NewReader(s) }

// StartBufferedBody begins a buffered body section for a BodyTag: output
// is redirected into a fresh BodyContent which is handed to the tag, then
// DoInitBody runs. The caller increments its push count first so error
// recovery unwinds the writer stack correctly.
func StartBufferedBody(ctx *PageContext, h BodyTag) (Writer, error) {
	b := ctx.PushBody()
	h.SetBodyContent(b)
	if err := h.DoInitBody(); err != nil {
		return b, err
	}
	return b, nil
}
