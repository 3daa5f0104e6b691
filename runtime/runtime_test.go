package runtime

import (
	"errors"
	"strings"
	"testing"
)

func newTestContext(bufSize int) (*PageContext, *strings.Builder) {
	var sb strings.Builder
	ctx := NewPageContext(nil, NewResponseWriter(&sb, bufSize))
	ctx.Initialize("test.gosp", "", NewScopedStore(), NewScopedStore(), nil)
	return ctx, &sb
}

func TestResponseWriterBuffering(t *testing.T) {
	var sb strings.Builder
	w := NewResponseWriter(&sb, 16)

	if _, err := w.WriteString("hello"); err != nil {
		t.Fatal(err)
	}
	if got := sb.String(); got != "" {
		t.Errorf("output before flush = %q, want empty", got)
	}
	if w.Committed() {
		t.Error("committed before flush")
	}
	if err := w.ClearBuffer(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteString("world"); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if got, want := sb.String(), "world"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if err := w.ClearBuffer(); !errors.Is(err, ErrCommitted) {
		t.Errorf("ClearBuffer after commit = %v, want ErrCommitted", err)
	}
}

func TestResponseWriterAutoFlush(t *testing.T) {
	var sb strings.Builder
	w := NewResponseWriter(&sb, 4)
	if _, err := w.WriteString("abcdef"); err != nil {
		t.Fatal(err)
	}
	if got, want := sb.String(), "abcdef"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if !w.Committed() {
		t.Error("not committed after overflow")
	}
}

func TestPushPopBody(t *testing.T) {
	ctx, _ := newTestContext(0)
	top := ctx.Out()

	b := ctx.PushBody()
	if ctx.Out() != b {
		t.Fatal("Out() is not the pushed body")
	}
	if _, err := ctx.Out().WriteString("inner"); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "inner"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if got := ctx.PopBody(); got != top {
		t.Error("PopBody did not restore the enclosing writer")
	}
	// Popping an empty stack is a no-op.
	if got := ctx.PopBody(); got != top {
		t.Error("PopBody on empty stack moved the writer")
	}
}

func TestOutcomeErrorRoundTrip(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		oc      Outcome
		err     error
		wantErr error
	}{
		{"continue", Continue, nil, nil},
		{"skip page", SkipPage, nil, ErrSkipPage},
		{"failure", Continue, boom, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AsError(tt.oc, tt.err)
			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Fatalf("AsError = %v, want %v", err, tt.wantErr)
			}
			oc, rest := AsOutcome(err)
			if tt.err != nil {
				if rest != tt.err {
					t.Errorf("AsOutcome error = %v, want %v", rest, tt.err)
				}
				return
			}
			if oc != tt.oc || rest != nil {
				t.Errorf("AsOutcome = (%v, %v), want (%v, nil)", oc, rest, tt.oc)
			}
		})
	}
}

func TestFindAttributeScopeOrder(t *testing.T) {
	ctx, _ := newTestContext(0)
	ctx.Application.Set("x", "app")
	if got, want := ctx.FindAttribute("x"), "app"; got != want {
		t.Errorf("FindAttribute = %v, want %v", got, want)
	}
	ctx.Session.Set("x", "session")
	if got, want := ctx.FindAttribute("x"), "session"; got != want {
		t.Errorf("FindAttribute = %v, want %v", got, want)
	}
	ctx.SetAttribute("x", "page")
	if got, want := ctx.FindAttribute("x"), "page"; got != want {
		t.Errorf("FindAttribute = %v, want %v", got, want)
	}
	if got := ctx.FindAttribute("missing"); got != nil {
		t.Errorf("FindAttribute(missing) = %v, want nil", got)
	}
}

type counterTag struct {
	ctx      *PageContext
	parent   Tag
	released int
}

func (c *counterTag) SetPageContext(ctx *PageContext) { c.ctx = ctx }
func (c *counterTag) SetParent(p Tag)                 { c.parent = p }
func (c *counterTag) Parent() Tag                     { return c.parent }
func (c *counterTag) DoStartTag() (EvalResult, error) { return EvalBodyInclude, nil }
func (c *counterTag) DoEndTag() (EvalResult, error)   { return EvalPage, nil }
func (c *counterTag) Release()                        { c.released++ }

func TestTagPoolRecycles(t *testing.T) {
	ctx, _ := newTestContext(0)
	made := 0
	pool := NewTagPool(2, func() Tag {
		made++
		return &counterTag{}
	})

	h1, reused := pool.Get(ctx)
	if reused {
		t.Error("first Get reported reuse")
	}
	pool.Reuse(h1)
	h2, reused := pool.Get(ctx)
	if !reused {
		t.Error("second Get did not reuse")
	}
	if h1 != h2 {
		t.Error("pool handed back a different handler")
	}
	if made != 1 {
		t.Errorf("constructed %d handlers, want 1", made)
	}

	// Overflow releases instead of pooling.
	extra := []Tag{&counterTag{}, &counterTag{}, &counterTag{}}
	for _, h := range extra {
		pool.Reuse(h)
	}
	last := extra[2].(*counterTag)
	if last.released != 1 {
		t.Errorf("overflow handler released %d times, want 1", last.released)
	}
}

func TestSetPropertyCoercion(t *testing.T) {
	type widget struct {
		Count int
		Label string
	}
	w := &widget{}
	if err := SetProperty(w, "count", "42"); err != nil {
		t.Fatal(err)
	}
	if w.Count != 42 {
		t.Errorf("Count = %d, want 42", w.Count)
	}
	if err := SetProperty(w, "label", 7); err != nil {
		t.Fatal(err)
	}
	if w.Label != "7" {
		t.Errorf("Label = %q, want %q", w.Label, "7")
	}
	if err := SetProperty(w, "missing", 1); err == nil {
		t.Error("setting unknown property succeeded")
	}
}

func TestGetPropertyPrefersGetter(t *testing.T) {
	obj := &withGetter{field: "hidden", exposed: "shown"}
	got, err := GetProperty(obj, "value")
	if err != nil {
		t.Fatal(err)
	}
	if got != "shown" {
		t.Errorf("GetProperty = %v, want %q", got, "shown")
	}
}

type withGetter struct {
	field   string
	exposed string
}

func (w *withGetter) GetValue() string { return w.exposed }

func TestFinishPage(t *testing.T) {
	t.Run("clean flushes", func(t *testing.T) {
		ctx, sb := newTestContext(64)
		ctx.Out().WriteString("ok")
		if err := ctx.FinishPage(nil); err != nil {
			t.Fatal(err)
		}
		if sb.String() != "ok" {
			t.Errorf("output = %q, want %q", sb.String(), "ok")
		}
	})
	t.Run("skip page flushes", func(t *testing.T) {
		ctx, sb := newTestContext(64)
		ctx.Out().WriteString("partial")
		if err := ctx.FinishPage(ErrSkipPage); err != nil {
			t.Fatal(err)
		}
		if sb.String() != "partial" {
			t.Errorf("output = %q, want %q", sb.String(), "partial")
		}
	})
	t.Run("failure discards uncommitted output", func(t *testing.T) {
		ctx, sb := newTestContext(64)
		ctx.Out().WriteString("half a page")
		err := ctx.FinishPage(errors.New("boom"))
		if err == nil {
			t.Fatal("FinishPage returned nil for a failed page")
		}
		var pe *PageError
		if !errors.As(err, &pe) {
			t.Fatalf("error type = %T, want *PageError", err)
		}
		if sb.String() != "" {
			t.Errorf("failed page wrote %q, want empty", sb.String())
		}
	})
}

func TestEvalAgainstScopes(t *testing.T) {
	ctx, _ := newTestContext(0)
	ctx.SetAttribute("n", 20)
	ctx.Session.Set("m", 22)

	if got := EvalInt(ctx, "n + m"); got != 42 {
		t.Errorf("EvalInt = %d, want 42", got)
	}
	if got := EvalString(ctx, "missing"); got != "" {
		t.Errorf("EvalString(missing) = %q, want empty", got)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("bad cast did not panic")
			}
		}()
		ctx.SetAttribute("s", "not a number")
		EvalInt(ctx, "s")
	}()
}

func TestEvalTypedResults(t *testing.T) {
	ctx, _ := newTestContext(0)
	ctx.SetAttribute("big", "9000000000")
	ctx.SetAttribute("ratio", "2.5")
	ctx.SetAttribute("on", "true")

	if got := EvalInt64(ctx, "big"); got != 9000000000 {
		t.Errorf("EvalInt64 = %d, want 9000000000", got)
	}
	if got := EvalFloat(ctx, "ratio"); got != 2.5 {
		t.Errorf("EvalFloat = %v, want 2.5", got)
	}
	if got := EvalBool(ctx, "on"); !got {
		t.Error("EvalBool = false, want true")
	}
}
