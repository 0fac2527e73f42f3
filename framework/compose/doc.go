// Package compose provides the composition root: a decorator over a
// container.Extendable that adds transitional bindings and whole-graph
// Snapshot / Restore.
//
//	services := binding.NewCollection()
//	binding.AddTransient[Store](services, newDiskStore)
//	binding.AddSingleton[Cache](services, newCache)
//	services.AsTransitional()
//
//	transition.RegisterProxy[Store](transition.DefaultProxies, func(p *transition.Proxy[Store]) Store {
//	    return storeProxy{p}
//	})
//
//	root, err := compose.NewRoot(services, container.New())
//	store := compose.MustResolve[Store](root)   // a proxy
//
//	root.Snapshot()
//	compose.Transition[Store](root, newMemoryStore)     // every Store consumer now uses memory
//	root.Restore()                                // and back
//
// Roots chain: NewRoot(more, root) decorates an existing root and shares its
// transition registry.
package compose
