// Package container provides the fallback resolver a composition root
// delegates to, and the Service Provider system that feeds it.
//
// # Overview
//
// The container is keyed by abstraction type. Bindings arrive as
// binding.Descriptor values through Extend, so a container can be amended
// after construction and observers are told about every amendment.
//
// # Container Lifecycle
//
//  1. Declare: providers.Register(&MyProvider{}) fills a binding.Collection
//  2. Build: c := container.New(); c.ExtendAll(services.Descriptors()...)
//  3. Boot: providers.Boot(c), safe to resolve everything after this
//  4. Resolve
//
// # Lifecycles
//
//	binding.AddTransient[Clock](services, newClock)   // new instance on every Resolve
//	binding.AddSingleton[Cache](services, newCache)   // built once, cached
//	binding.AddScoped[Session](services, newSession)  // once per Scope
//
// Scoped bindings cannot be resolved from the container itself:
//
//	s := c.NewScope()
//	defer s.Close()
//	session, err := container.Resolve[Session](s)
//
// # Resolving
//
//	raw, err := c.Resolve(reflect.TypeFor[Cache]())
//	cache, err := container.Resolve[Cache](c)   // preferred
//	cache := container.MustResolve[Cache](c)    // panics on error
//
// Factories receive a binding.Resolver that remembers the path being built.
// Resolving an abstraction already on the path fails with
// ErrCircularDependency.
//
// # Snapshot / Restore
//
// Snapshot saves the bindings and the cached singletons. Restore puts them
// back and may be called any number of times; without a Snapshot it does
// nothing.
package container
