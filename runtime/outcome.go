package runtime

import (
	"errors"
	"fmt"
)

// Outcome tells a caller whether page rendering should continue past the
// current node or stop for the remainder of the page.
type Outcome int

const (
	Continue Outcome = iota
	SkipPage
)

func (o Outcome) String() string {
	if o == SkipPage {
		return "skip-page"
	}
	return "continue"
}

// ErrSkipPage carries a SkipPage outcome across the Fragment boundary,
// whose Invoke method returns only an error. Dispatch code converts it
// back to an Outcome on the other side; it never reaches page callers.
var ErrSkipPage = errors.New("skip rest of page")

// AsOutcome converts a fragment invocation error back into the outcome
// and error pair used inside generated render methods.
func AsOutcome(err error) (Outcome, error) {
	if err == nil {
		return Continue, nil
	}
	if errors.Is(err, ErrSkipPage) {
		return SkipPage, nil
	}
	return Continue, err
}

// AsError converts an outcome and error pair to the single error carried
// through a Fragment's Invoke method.
func AsError(oc Outcome, err error) error {
	if err != nil {
		return err
	}
	if oc == SkipPage {
		return ErrSkipPage
	}
	return nil
}

// PageError wraps a failure raised while rendering a page.
type PageError struct {
	Page string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("rendering %s: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// CatchPanic recovers a panic raised inside a render method and stores it
// in *err. Expression evaluation and type coercion panic on failure; this
// turns those into the page's error return.
func CatchPanic(err *error) {
	if r := recover(); r != nil {
		switch v := r.(type) {
		case error:
			*err = v
		default:
			*err = fmt.Errorf("%v", v)
		}
	}
}

// Catch routes a body failure through a TryCatchFinally handler, restoring
// the writer stack to the depth recorded when the tag started. Generated
// code defers it around handlers that implement the interface.
func Catch(err *error, h TryCatchFinally, depth int, ctx *PageContext) {
	r := recover()
	if r == nil && *err == nil {
		return
	}
	caught := *err
	if r != nil {
		if e, ok := r.(error); ok {
			caught = e
		} else {
			caught = fmt.Errorf("%v", r)
		}
	}
	if errors.Is(caught, ErrSkipPage) {
		// Not a failure; finally still runs via its own defer.
		*err = caught
		return
	}
	for ctx.BodyDepth() > depth {
		ctx.PopBody()
	}
	*err = h.DoCatch(caught)
}
