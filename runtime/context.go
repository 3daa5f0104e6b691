package runtime

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
)

// Attribute scopes, widest-last so FindAttribute can walk them in order.
type Scope int

const (
	PageScope Scope = iota + 1
	RequestScope
	SessionScope
	ApplicationScope
)

// ScopedStore is a named-attribute map shared between pages. Session and
// application scopes guard concurrent pages with a mutex that generated
// code also takes around conditional object creation.
type ScopedStore struct {
	mu    sync.Mutex
	attrs map[string]any
}

func NewScopedStore() *ScopedStore {
	return &ScopedStore{attrs: make(map[string]any)}
}

func (s *ScopedStore) Lock()   { s.mu.Lock() }
func (s *ScopedStore) Unlock() { s.mu.Unlock() }

func (s *ScopedStore) Get(name string) any { return s.attrs[name] }

func (s *ScopedStore) Set(name string, value any) {
	if value == nil {
		delete(s.attrs, name)
		return
	}
	s.attrs[name] = value
}

func (s *ScopedStore) Remove(name string) { delete(s.attrs, name) }

// Dispatcher resolves includes and forwards to other resources. The host
// environment supplies one; pages call it through the context.
type Dispatcher interface {
	Include(ctx *PageContext, path string, flush bool) error
	Forward(ctx *PageContext, path string) error
}

// PageContext is the per-request state of one page execution: the writer
// stack, the four attribute scopes, and the host hooks generated code
// calls into.
type PageContext struct {
	Request     *http.Request
	Response    *ResponseWriter
	Session     *ScopedStore
	Application *ScopedStore

	page       map[string]any
	out        Writer
	bodyStack  []Writer
	dispatcher Dispatcher
	errorPage  string
	pageName   string

	env map[string]any // expression environment, lazily built
}

func NewPageContext(req *http.Request, resp *ResponseWriter) *PageContext {
	return &PageContext{
		Request:  req,
		Response: resp,
		page:     make(map[string]any),
		out:      resp,
	}
}

// Initialize wires the host pieces a page needs before rendering.
func (c *PageContext) Initialize(pageName, errorPage string, session, app *ScopedStore, d Dispatcher) {
	c.pageName = pageName
	c.errorPage = errorPage
	c.Session = session
	c.Application = app
	c.dispatcher = d
}

// Out returns the currently active writer.
func (c *PageContext) Out() Writer { return c.out }

// PushBody redirects output into a fresh BodyContent and returns it.
func (c *PageContext) PushBody() *BodyContent {
	b := NewBodyContent(c.out)
	c.bodyStack = append(c.bodyStack, c.out)
	c.out = b
	return b
}

// PushBodyWriter redirects output to w, used when a fragment is invoked
// with an explicit destination.
func (c *PageContext) PushBodyWriter(w Writer) {
	c.bodyStack = append(c.bodyStack, c.out)
	c.out = w
}

// BodyDepth returns the current depth of the pushed-body stack. Error
// recovery records it before a tag body and unwinds back to it.
func (c *PageContext) BodyDepth() int { return len(c.bodyStack) }

// PopBody restores the enclosing writer and returns it.
func (c *PageContext) PopBody() Writer {
	n := len(c.bodyStack)
	if n == 0 {
		return c.out
	}
	c.out = c.bodyStack[n-1]
	c.bodyStack = c.bodyStack[:n-1]
	return c.out
}

func (c *PageContext) SetAttribute(name string, value any) {
	c.page[name] = value
	c.env = nil
}

func (c *PageContext) SetScopedAttribute(name string, value any, scope Scope) {
	switch scope {
	case RequestScope:
		// Request attributes live alongside page attributes for the
		// duration of the dispatch chain.
		c.page["request:"+name] = value
	case SessionScope:
		c.Session.Set(name, value)
	case ApplicationScope:
		c.Application.Set(name, value)
	default:
		c.page[name] = value
	}
	c.env = nil
}

func (c *PageContext) GetAttribute(name string) any { return c.page[name] }

func (c *PageContext) GetScopedAttribute(name string, scope Scope) any {
	switch scope {
	case RequestScope:
		return c.page["request:"+name]
	case SessionScope:
		return c.Session.Get(name)
	case ApplicationScope:
		return c.Application.Get(name)
	default:
		return c.page[name]
	}
}

// FindAttribute searches the scopes from page outward.
func (c *PageContext) FindAttribute(name string) any {
	if v, ok := c.page[name]; ok {
		return v
	}
	if v, ok := c.page["request:"+name]; ok {
		return v
	}
	if c.Session != nil {
		if v := c.Session.Get(name); v != nil {
			return v
		}
	}
	if c.Application != nil {
		if v := c.Application.Get(name); v != nil {
			return v
		}
	}
	return nil
}

func (c *PageContext) RemoveAttribute(name string, scope Scope) {
	switch scope {
	case RequestScope:
		delete(c.page, "request:"+name)
	case SessionScope:
		c.Session.Remove(name)
	case ApplicationScope:
		c.Application.Remove(name)
	default:
		delete(c.page, name)
	}
	c.env = nil
}

// Include dispatches to another resource, flushing first when asked.
func (c *PageContext) Include(path string, flush bool) error {
	if c.dispatcher == nil {
		return fmt.Errorf("include %q: no dispatcher", path)
	}
	if flush {
		if err := c.Response.Flush(); err != nil {
			return err
		}
	}
	return c.dispatcher.Include(c, path, flush)
}

// Forward abandons the current page's output and dispatches to another
// resource. Callers stop rendering afterwards.
func (c *PageContext) Forward(path string) error {
	if c.dispatcher == nil {
		return fmt.Errorf("forward %q: no dispatcher", path)
	}
	if err := c.Response.ClearBuffer(); err != nil {
		return err
	}
	return c.dispatcher.Forward(c, path)
}

// RequestEncoding returns the character encoding of the request, defaulting
// to UTF-8.
func (c *PageContext) RequestEncoding() string {
	if c.Request != nil {
		_, params, err := mime.ParseMediaType(c.Request.Header.Get("Content-Type"))
		if err == nil {
			if enc, ok := params["charset"]; ok {
				return enc
			}
		}
	}
	return "UTF-8"
}

// SyncBeforeInvoke is a hook for fragment units to publish their scripting
// variables before invoking a body. The base context has nothing to sync.
func (c *PageContext) SyncBeforeInvoke() {}

// Inject gives the host a chance to wire resources into a freshly
// constructed tag handler.
func (c *PageContext) Inject(h any) {}

// Destroy releases a handler that is not pooled.
func (c *PageContext) Destroy(h any) {
	if t, ok := h.(Tag); ok {
		t.Release()
	}
}

// HandlePageError routes err to the page's error target, or returns it
// wrapped when there is none.
func (c *PageContext) HandlePageError(err error) error {
	if c.errorPage != "" && c.dispatcher != nil {
		c.SetScopedAttribute("exception", err, RequestScope)
		if c.Response.ClearBuffer() == nil {
			return c.dispatcher.Forward(c, c.errorPage)
		}
	}
	return &PageError{Page: c.pageName, Err: err}
}

// FinishPage completes the page: a clean run flushes buffered output, a
// SkipPage outcome counts as clean, anything else discards uncommitted
// output and runs error handling.
func (c *PageContext) FinishPage(err error) error {
	if err == nil || err == ErrSkipPage {
		return c.Response.Flush()
	}
	if !c.Response.Committed() {
		_ = c.Response.ClearBuffer()
	}
	return c.HandlePageError(err)
}

// Env returns the expression environment: page attributes first, then the
// wider scopes, plus the implicit request map.
func (c *PageContext) Env() map[string]any {
	if c.env != nil {
		return c.env
	}
	env := make(map[string]any, len(c.page)+8)
	if c.Application != nil {
		c.Application.mu.Lock()
		for k, v := range c.Application.attrs {
			env[k] = v
		}
		c.Application.mu.Unlock()
	}
	if c.Session != nil {
		c.Session.mu.Lock()
		for k, v := range c.Session.attrs {
			env[k] = v
		}
		c.Session.mu.Unlock()
	}
	for k, v := range c.page {
		env[k] = v
	}
	if c.Request != nil {
		param := make(map[string]string)
		for k, vs := range c.Request.URL.Query() {
			if len(vs) > 0 {
				param[k] = vs[0]
			}
		}
		env["param"] = param
	}
	env["pageContext"] = c
	c.env = env
	return env
}

// URLEncode escapes s for use inside a query string.
func URLEncode(s string) string { return url.QueryEscape(s) }

var _ io.Writer = (*BodyContent)(nil)
