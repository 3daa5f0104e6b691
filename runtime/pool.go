package runtime

import (
	"reflect"
	"sync"
)

// TagPool recycles classic tag handlers of one shape: same tag, same
// attribute set. Handlers come back with their attributes already assigned
// from the previous use, so reusing a pooled handler only needs the
// attributes set again.
type TagPool struct {
	mu       sync.Mutex
	free     []Tag
	capacity int
	newTag   func() Tag
}

func NewTagPool(capacity int, newTag func() Tag) *TagPool {
	if capacity <= 0 {
		capacity = 8
	}
	return &TagPool{capacity: capacity, newTag: newTag}
}

// Get returns a pooled handler and whether it was recycled. A fresh
// handler still needs host injection.
func (p *TagPool) Get(ctx *PageContext) (Tag, bool) {
	p.mu.Lock()
	n := len(p.free)
	if n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return h, true
	}
	p.mu.Unlock()
	h := p.newTag()
	ctx.Inject(h)
	return h, false
}

// Reuse returns a handler to the pool; overflow handlers are released.
func (p *TagPool) Reuse(h Tag) {
	p.mu.Lock()
	if len(p.free) < p.capacity {
		p.free = append(p.free, h)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	h.Release()
}

// Release drains the pool, releasing every held handler.
func (p *TagPool) Release() {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.mu.Unlock()
	for _, h := range free {
		h.Release()
	}
}

// Config is the page-level runtime configuration handed to generated Init
// methods: it creates the page's tag pools and resolves object types.
type Config struct {
	PoolCapacity int
	Types        *TypeRegistry
}

// GetPool returns a pool for the named shape, creating it on first use.
// Pools are per page instance; the name keys shapes within the page.
func (c *Config) GetPool(name string, newTag func() Tag) *TagPool {
	return NewTagPool(c.PoolCapacity, newTag)
}

// TypeRegistry maps declared type names to Go types so pages can construct
// scoped objects whose types are only known by name in the page source.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]reflect.Type)}
}

// RegisterType makes a named type constructible. The example value's type
// is registered; pass a zero value, not a pointer.
func (r *TypeRegistry) RegisterType(name string, example any) {
	r.mu.Lock()
	r.types[name] = reflect.TypeOf(example)
	r.mu.Unlock()
}

// Lookup returns the type registered under name.
func (r *TypeRegistry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	return t, ok
}
