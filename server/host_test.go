package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gosp/runtime"
)

// stubPage renders through the same context surface a generated page does.
type stubPage struct {
	render    func(ctx *runtime.PageContext) error
	errorPage string
	inited    bool
	destroyed bool
}

func (p *stubPage) Init(cfg *runtime.Config)               { p.inited = true }
func (p *stubPage) Render(ctx *runtime.PageContext) error  { return p.render(ctx) }
func (p *stubPage) Destroy()                               { p.destroyed = true }
func (p *stubPage) ErrorPage() string                      { return p.errorPage }
func (p *stubPage) BufferSize() int                        { return 64 }

func textPage(s string) *stubPage {
	return &stubPage{render: func(ctx *runtime.PageContext) error {
		if _, err := ctx.Out().WriteString(s); err != nil {
			return err
		}
		return ctx.Response.Flush()
	}}
}

func TestHostServesRegisteredPage(t *testing.T) {
	h := NewHost(nil)
	h.Register("/index", textPage("hello from index"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index", nil))

	if got := rec.Body.String(); got != "hello from index" {
		t.Errorf("body = %q", got)
	}
}

func TestHostNotFound(t *testing.T) {
	h := NewHost(nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHostSessionPersistsAcrossRequests(t *testing.T) {
	h := NewHost(nil)
	h.Register("/count", &stubPage{render: func(ctx *runtime.PageContext) error {
		n, _ := ctx.GetScopedAttribute("hits", runtime.SessionScope).(int)
		ctx.SetScopedAttribute("hits", n+1, runtime.SessionScope)
		if _, err := ctx.Out().WriteString(string(rune('0' + n + 1))); err != nil {
			return err
		}
		return ctx.Response.Flush()
	}})

	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/count", nil))
	if rec1.Body.String() != "1" {
		t.Fatalf("first visit = %q", rec1.Body.String())
	}

	cookies := rec1.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/count", nil)
	req2.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	if rec2.Body.String() != "2" {
		t.Errorf("second visit = %q, session state lost", rec2.Body.String())
	}
}

func TestHostInclude(t *testing.T) {
	h := NewHost(nil)
	h.Register("/frag", textPage("[included]"))
	h.Register("/outer", &stubPage{render: func(ctx *runtime.PageContext) error {
		if _, err := ctx.Out().WriteString("before "); err != nil {
			return err
		}
		if err := ctx.Include("/frag?x=1", false); err != nil {
			return err
		}
		if _, err := ctx.Out().WriteString(" after"); err != nil {
			return err
		}
		return ctx.Response.Flush()
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/outer", nil))
	if got := rec.Body.String(); got != "before [included] after" {
		t.Errorf("body = %q", got)
	}
}

func TestHostForwardReplacesOutput(t *testing.T) {
	h := NewHost(nil)
	h.Register("/target", textPage("forward target"))
	h.Register("/outer", &stubPage{render: func(ctx *runtime.PageContext) error {
		if _, err := ctx.Out().WriteString("discarded"); err != nil {
			return err
		}
		if err := ctx.Forward("/target"); err != nil {
			return err
		}
		return nil
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/outer", nil))
	if got := rec.Body.String(); got != "forward target" {
		t.Errorf("body = %q", got)
	}
}

func TestHostErrorPageDispatch(t *testing.T) {
	h := NewHost(nil)
	h.Register("/oops", textPage("it broke"))
	failing := &stubPage{
		errorPage: "/oops",
		render: func(ctx *runtime.PageContext) error {
			if _, err := ctx.Out().WriteString("partial"); err != nil {
				return err
			}
			return ctx.FinishPage(errFailed{})
		},
	}
	h.Register("/bad", failing)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bad", nil))
	if got := rec.Body.String(); !strings.Contains(got, "it broke") || strings.Contains(got, "partial") {
		t.Errorf("body = %q, expected the error page alone", got)
	}
}

func TestHostShutdownDestroysPages(t *testing.T) {
	h := NewHost(nil)
	p := textPage("x")
	h.Register("/p", p)
	if !p.inited {
		t.Error("Register did not initialize the page")
	}
	h.Shutdown()
	if !p.destroyed {
		t.Error("Shutdown did not destroy the page")
	}
}

type errFailed struct{}

func (errFailed) Error() string { return "render failed" }
