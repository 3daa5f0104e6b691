// Package server hosts compiled template units over HTTP: it maps request
// paths to pages, manages the session and application attribute stores,
// and resolves the include/forward dispatches pages make at render time.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"gosp/runtime"
)

const sessionCookie = "GOSPSESSION"

// Page is the contract every compiled template unit exposes to the host.
type Page interface {
	Init(cfg *runtime.Config)
	Render(ctx *runtime.PageContext) error
	Destroy()
	ErrorPage() string
	BufferSize() int
}

// Host serves registered pages and carries the state shared between them.
type Host struct {
	cfg         *runtime.Config
	application *runtime.ScopedStore

	mu       sync.Mutex
	pages    map[string]Page
	sessions map[string]*runtime.ScopedStore
}

func NewHost(cfg *runtime.Config) *Host {
	if cfg == nil {
		cfg = &runtime.Config{}
	}
	return &Host{
		cfg:         cfg,
		application: runtime.NewScopedStore(),
		pages:       make(map[string]Page),
		sessions:    make(map[string]*runtime.ScopedStore),
	}
}

// Application returns the application-scope store, for host code that wants
// to seed attributes before serving.
func (h *Host) Application() *runtime.ScopedStore { return h.application }

// Register mounts a page at the given path and initializes it.
func (h *Host) Register(path string, p Page) {
	p.Init(h.cfg)
	h.mu.Lock()
	h.pages[path] = p
	h.mu.Unlock()
}

// Shutdown destroys every registered page, releasing their handler pools.
func (h *Host) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.pages {
		p.Destroy()
	}
	h.pages = make(map[string]Page)
}

func (h *Host) lookup(path string) Page {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[path]
}

// session returns the store for the request's session, creating it and
// setting the cookie on first contact.
func (h *Host) session(w http.ResponseWriter, r *http.Request) *runtime.ScopedStore {
	if c, err := r.Cookie(sessionCookie); err == nil {
		h.mu.Lock()
		s, ok := h.sessions[c.Value]
		h.mu.Unlock()
		if ok {
			return s
		}
	}

	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	s := runtime.NewScopedStore()

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()

	if w != nil {
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
	}
	return s
}

func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := h.lookup(r.URL.Path)
	if p == nil {
		http.NotFound(w, r)
		return
	}
	session := h.session(w, r)

	resp := runtime.NewResponseWriter(w, p.BufferSize())
	ctx := runtime.NewPageContext(r, resp)
	ctx.Initialize(r.URL.Path, p.ErrorPage(), session, h.application, h)

	if err := p.Render(ctx); err != nil {
		if !resp.Committed() {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Include renders another page into the caller's current writer, sharing
// its session and request but with a fresh page scope.
func (h *Host) Include(ctx *runtime.PageContext, path string, flush bool) error {
	p := h.lookup(stripQuery(path))
	if p == nil {
		return fmt.Errorf("include %q: no such page", path)
	}
	inner := runtime.NewPageContext(requestFor(ctx, path), ctx.Response)
	inner.Initialize(path, p.ErrorPage(), ctx.Session, h.application, h)
	inner.PushBodyWriter(ctx.Out())
	return p.Render(inner)
}

// Forward renders another page in place of the caller's output. The caller
// already cleared its buffer and stops rendering after this returns.
func (h *Host) Forward(ctx *runtime.PageContext, path string) error {
	p := h.lookup(stripQuery(path))
	if p == nil {
		return fmt.Errorf("forward %q: no such page", path)
	}
	inner := runtime.NewPageContext(requestFor(ctx, path), ctx.Response)
	inner.Initialize(path, p.ErrorPage(), ctx.Session, h.application, h)
	return p.Render(inner)
}

// requestFor rebuilds the request for a dispatch target so its query
// parameters include the ones encoded into the path expression.
func requestFor(ctx *runtime.PageContext, path string) *http.Request {
	r := ctx.Request
	if r == nil {
		return nil
	}
	u := *r.URL
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u.Path = path[:i]
		u.RawQuery = mergeQuery(r.URL.RawQuery, path[i+1:])
	} else {
		u.Path = path
	}
	clone := r.Clone(r.Context())
	clone.URL = &u
	return clone
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

func mergeQuery(base, extra string) string {
	if base == "" {
		return extra
	}
	if extra == "" {
		return base
	}
	return base + "&" + extra
}
