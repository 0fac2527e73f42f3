package transition

import (
	"reflect"
	"sync"
)

// Proxy is the consumer-facing half of a Handle. Forwarding types embed a
// *Proxy[T] and resolve the target through Current on every call.
type Proxy[T any] struct {
	handle *Handle[T]
}

// Current returns the implementation active at call time.
func (p *Proxy[T]) Current() T { return p.handle.Current() }

// Handle returns the handle backing this proxy.
func (p *Proxy[T]) Handle() *Handle[T] { return p.handle }

// Release retires the proxy. Its handle is pruned by the next bulk
// operation even if the proxy is still referenced.
func (p *Proxy[T]) Release() { p.handle.release() }

// ProxyFactory wraps a proxy into a value implementing T.
type ProxyFactory[T any] func(p *Proxy[T]) T

// Proxies maps abstraction types to their proxy factories.
type Proxies struct {
	mu        sync.RWMutex
	factories map[reflect.Type]any
}

// NewProxies creates an empty proxy table.
func NewProxies() *Proxies {
	return &Proxies{factories: make(map[reflect.Type]any)}
}

// DefaultProxies is the process-wide proxy table used when no other is given.
var DefaultProxies = NewProxies()

// RegisterProxy stores the proxy factory for T, replacing any previous one.
func RegisterProxy[T any](ps *Proxies, f ProxyFactory[T]) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.factories[TypeOf[T]()] = f
}

// LookupProxy returns the proxy factory registered for T.
func LookupProxy[T any](ps *Proxies) (ProxyFactory[T], bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	f, ok := ps.factories[TypeOf[T]()]
	if !ok {
		return nil, false
	}
	typed, ok := f.(ProxyFactory[T])
	return typed, ok
}

// Has reports whether a proxy factory is registered for t.
func (ps *Proxies) Has(t reflect.Type) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, ok := ps.factories[t]
	return ok
}

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}
