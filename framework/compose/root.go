package compose

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/container"
	"github.com/km-arc/go-compose/framework/transition"
)

// Root is the composition root. It decorates a fallback resolver with a
// ledger of singleton instances and owns the transition registry, so a
// single Snapshot or Restore covers the whole graph.
type Root struct {
	mu         sync.RWMutex
	singletons map[reflect.Type]any
	saved      map[reflect.Type]any
	fallback   container.Extendable
	observers  []container.Observer

	registry *transition.Registry
	proxies  *transition.Proxies
	tOpts    []transition.Option
	logger   *zap.Logger
}

var (
	_ container.Extendable = (*Root)(nil)
	_ container.Observer   = (*Root)(nil)
)

type options struct {
	logger   *zap.Logger
	proxies  *transition.Proxies
	registry *transition.Registry
	observer transition.Observer
}

// Option configures a Root.
type Option func(*options)

// WithLogger sets the logger used by the root and its transition
// containers. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProxies sets the proxy table. The default is transition.DefaultProxies.
func WithProxies(ps *transition.Proxies) Option {
	return func(o *options) { o.proxies = ps }
}

// WithRegistry shares an existing transition registry. By default a root
// chained onto another Root shares that root's registry and any other root
// gets a new one.
func WithRegistry(r *transition.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithObserver forwards transition events, e.g. to metrics.
func WithObserver(obs transition.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// resolvedNotifier is implemented by fallbacks that report every factory
// run, including nested ones.
type resolvedNotifier interface {
	AfterResolving(cb func(t reflect.Type, instance any))
}

// NewRoot builds the root over fallback from the complete declaration list.
//
// Every singleton abstraction becomes a ledger key, every transitional
// declaration gets its transition container, and abstractions declared
// after the last AsTransitional marker are recorded as ineligible. Each
// descriptor is then extended into the fallback.
func NewRoot(services *binding.Collection, fallback container.Extendable, opts ...Option) (*Root, error) {
	if fallback == nil {
		return nil, ErrNoFallback
	}
	if err := services.Err(); err != nil {
		return nil, fmt.Errorf("compose: declarations: %w", err)
	}

	o := options{logger: zap.NewNop(), proxies: transition.DefaultProxies}
	for _, opt := range opts {
		opt(&o)
	}

	var tOpts []transition.Option
	tOpts = append(tOpts, transition.WithLogger(o.logger))
	if o.observer != nil {
		tOpts = append(tOpts, transition.WithObserver(o.observer))
	}

	registry := o.registry
	if registry == nil {
		if inner, ok := fallback.(*Root); ok {
			registry = inner.registry
		} else {
			registry = transition.NewRegistry(tOpts...)
		}
	}

	r := &Root{
		singletons: make(map[reflect.Type]any),
		fallback:   fallback,
		registry:   registry,
		proxies:    o.proxies,
		tOpts:      tOpts,
		logger:     o.logger,
	}

	descriptors := services.Descriptors()
	for _, d := range descriptors {
		if d.Lifecycle == binding.Singleton {
			r.singletons[d.Abstraction] = nil
		}
	}
	excluded := services.Excluded()
	for _, t := range excluded {
		registry.Exclude(t)
	}

	var errs []error
	transitional := 0
	for _, d := range descriptors {
		adapted, err := d.Adapt(r.target())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if adapted.Adapted() {
			transitional++
		}
		next, err := fallback.Extend(adapted)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fallback = next
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("compose: build root: %w", err)
	}
	r.fallback = fallback

	fallback.Subscribe(r)
	if n, ok := fallback.(resolvedNotifier); ok {
		n.AfterResolving(r.record)
	}

	r.logger.Info("composition root built",
		zap.Int("bindings", len(descriptors)),
		zap.Int("transitional", transitional),
		zap.Int("singletons", len(r.singletons)),
		zap.Int("excluded", len(excluded)),
	)
	return r, nil
}

func (r *Root) target() binding.Target {
	return binding.Target{
		Registry: r.registry,
		Proxies:  r.proxies,
		Root:     r,
		Options:  r.tOpts,
	}
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Resolve delegates to the fallback. A resolved singleton is recorded in the
// ledger; the ledger never serves instances.
func (r *Root) Resolve(t reflect.Type) (any, error) {
	r.mu.RLock()
	fb := r.fallback
	r.mu.RUnlock()

	v, err := fb.Resolve(t)
	if err != nil {
		return nil, err
	}
	r.record(t, v)
	return v, nil
}

func (r *Root) record(t reflect.Type, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.singletons[t]; ok {
		r.singletons[t] = v
	}
}

// AfterResolving forwards to the fallback when it reports resolutions, so
// an outer root chained onto this one sees nested resolutions too.
func (r *Root) AfterResolving(cb func(t reflect.Type, instance any)) {
	r.mu.RLock()
	fb := r.fallback
	r.mu.RUnlock()
	if n, ok := fb.(resolvedNotifier); ok {
		n.AfterResolving(cb)
	}
}

// Descriptor returns the binding for t as the fallback chain sees it.
func (r *Root) Descriptor(t reflect.Type) (binding.Descriptor, bool) {
	r.mu.RLock()
	fb := r.fallback
	r.mu.RUnlock()
	if d, ok := fb.(container.Describer); ok {
		return d.Descriptor(t)
	}
	return binding.Descriptor{}, false
}

// Building returns a Resolver for the dependencies of t, so that resolving t
// again through it is reported as a cycle. Without a fallback that tracks
// resolution paths it returns the root itself.
func (r *Root) Building(t reflect.Type) binding.Resolver {
	r.mu.RLock()
	fb := r.fallback
	r.mu.RUnlock()
	if b, ok := fb.(container.Builder); ok {
		return b.Building(t)
	}
	return r
}

// ── Extension ─────────────────────────────────────────────────────────────────

// Extend adds a binding after construction. Transitional descriptors get
// their transition container first. The root stays the resolver to use.
func (r *Root) Extend(d binding.Descriptor) (container.Extendable, error) {
	adapted, err := d.Adapt(r.target())
	if err != nil {
		return r, err
	}

	r.mu.RLock()
	fb := r.fallback
	r.mu.RUnlock()

	// fb notifies OnAmendment, which takes r.mu; do not hold it here.
	next, err := fb.Extend(adapted)
	if err != nil {
		return r, err
	}

	r.mu.Lock()
	r.fallback = next
	r.mu.Unlock()
	return r, nil
}

// OnAmendment keeps the ledger in step with bindings added anywhere down
// the chain and passes the amendment on to the root's own subscribers.
func (r *Root) OnAmendment(d binding.Descriptor) {
	r.mu.Lock()
	if d.Lifecycle == binding.Singleton {
		r.singletons[d.Abstraction] = nil
	} else {
		delete(r.singletons, d.Abstraction)
	}
	observers := append([]container.Observer(nil), r.observers...)
	r.mu.Unlock()

	r.logger.Debug("binding amended", zap.Stringer("descriptor", d))
	for _, o := range observers {
		o.OnAmendment(d)
	}
}

// Subscribe registers an amendment observer.
func (r *Root) Subscribe(o container.Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// ── Snapshot / Restore ────────────────────────────────────────────────────────

// Snapshot saves the ledger, then the fallback chain, then every
// transition container.
func (r *Root) Snapshot() error {
	r.mu.Lock()
	r.saved = maps.Clone(r.singletons)
	fb := r.fallback
	r.mu.Unlock()

	var errs []error
	if err := fb.Snapshot(); err != nil {
		errs = append(errs, err)
	}
	if err := r.registry.Snapshot(); err != nil {
		errs = append(errs, err)
	}
	r.logger.Debug("root snapshot", zap.Int("singletons", len(r.saved)))
	return errors.Join(errs...)
}

// Restore puts back what the last Snapshot saved, in the same order.
// Without a Snapshot the ledger is left alone.
func (r *Root) Restore() error {
	r.mu.Lock()
	if r.saved != nil {
		r.singletons = maps.Clone(r.saved)
	}
	fb := r.fallback
	r.mu.Unlock()

	var errs []error
	if err := fb.Restore(); err != nil {
		errs = append(errs, err)
	}
	if err := r.registry.Restore(); err != nil {
		errs = append(errs, err)
	}
	r.logger.Debug("root restored")
	return errors.Join(errs...)
}

// ── Accessors ─────────────────────────────────────────────────────────────────

// Singletons returns a copy of the ledger. Unresolved singletons map to nil.
func (r *Root) Singletons() map[reflect.Type]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.singletons)
}

// Registry returns the transition registry.
func (r *Root) Registry() *transition.Registry { return r.registry }

// Fallback returns the resolver the root currently delegates to.
func (r *Root) Fallback() container.Extendable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Logger returns the root's logger.
func (r *Root) Logger() *zap.Logger { return r.logger }
