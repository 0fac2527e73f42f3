// Package transition implements hot-swappable bindings.
//
// A consumer that resolves a transitional binding receives a proxy instead of
// the implementation itself. Every proxy is backed by a Handle, and every
// Handle lives in the Container for its (abstraction, original implementation)
// pair. Changing a Container swaps the implementation behind every live proxy
// at once, so consumers that were injected long ago observe the new behaviour
// on their next call.
//
// # Proxies
//
// Go cannot manufacture an implementation of an arbitrary interface at
// runtime, so each abstraction needs a small forwarding type. It embeds
// *Proxy[T] and calls Current() in every method:
//
//	type greeterProxy struct{ *transition.Proxy[Greeter] }
//
//	func (p greeterProxy) Greet(name string) string { return p.Current().Greet(name) }
//
//	transition.RegisterProxy(transition.DefaultProxies, func(p *transition.Proxy[Greeter]) Greeter {
//	    return greeterProxy{p}
//	})
//
// The value returned by a ProxyFactory must keep the *Proxy[T] reachable.
// Liveness of a Handle is tracked through a weak pointer to its proxy: once
// the consumer drops the proxy and the garbage collector reclaims it, the next
// bulk operation prunes the Handle. Release() retires a proxy explicitly.
//
// # Transitions
//
//	changed, err := transition.Transition(registry, func() (Greeter, error) {
//	    return &loudGreeter{}, nil
//	})
//
// Transitioning an abstraction that no container was registered for is a
// no-op that reports false. Transitioning an abstraction that was declared
// after a closing AsTransitional marker returns an *EligibilityError.
//
// # Disposal
//
// Implementations that satisfy io.Closer are closed when they leave the last
// slot (current or snapshot) of a Handle. A value shared by several handles is
// closed once per bulk operation. Close errors never prevent the swap; they are
// logged and returned as *DisposeError after the new value is in place.
package transition
