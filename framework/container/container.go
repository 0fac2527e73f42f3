package container

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-compose/framework/binding"
)

// ── Extension contract ────────────────────────────────────────────────────────

// Extendable is a resolver that accepts new bindings after construction and
// can save and restore its state.
type Extendable interface {
	binding.Resolver

	// Extend adds or replaces the binding for d.Abstraction. It returns the
	// resolver callers should use from now on.
	Extend(d binding.Descriptor) (Extendable, error)

	Snapshot() error
	Restore() error

	// Subscribe registers o to be told about every Extend.
	Subscribe(o Observer)
}

// Observer is notified when a binding is added to an Extendable.
type Observer interface {
	OnAmendment(d binding.Descriptor)
}

// Builder is implemented by resolvers that can resolve the dependencies of
// an abstraction under construction. Resolving that abstraction again
// through the returned Resolver fails with ErrCircularDependency.
type Builder interface {
	Building(t reflect.Type) binding.Resolver
}

// Describer is implemented by resolvers that expose their bindings.
type Describer interface {
	Descriptor(t reflect.Type) (binding.Descriptor, bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(d binding.Descriptor)

func (f ObserverFunc) OnAmendment(d binding.Descriptor) { f(d) }

// ── Container ─────────────────────────────────────────────────────────────────

// entry is one registered descriptor. build serialises singleton
// construction for this binding.
type entry struct {
	desc  binding.Descriptor
	build sync.Mutex
}

// state is everything Snapshot saves.
type state struct {
	bindings  map[reflect.Type]*entry
	instances map[reflect.Type]any
	order     []reflect.Type
}

func (s state) clone() state {
	out := state{
		bindings:  make(map[reflect.Type]*entry, len(s.bindings)),
		instances: make(map[reflect.Type]any, len(s.instances)),
		order:     append([]reflect.Type(nil), s.order...),
	}
	for k, v := range s.bindings {
		out.bindings[k] = v
	}
	for k, v := range s.instances {
		out.instances[k] = v
	}
	return out
}

// Container is the fallback resolver. Bindings are keyed by abstraction
// type; the last Extend for a type wins.
//
// It supports:
//   - Transient / Singleton / Scoped lifecycles
//   - circular dependency detection per resolution path
//   - Snapshot / Restore of bindings and singleton instances
//   - amendment observers and after-resolving callbacks
type Container struct {
	mu sync.RWMutex
	state

	observers      []Observer
	afterResolving []func(reflect.Type, any)

	saved    state
	hasSaved bool

	logger *zap.Logger
}

var (
	_ Extendable = (*Container)(nil)
	_ Builder    = (*Container)(nil)
	_ Describer  = (*Container)(nil)
)

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the container's logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty container.
func New(opts ...Option) *Container {
	c := &Container{
		state: state{
			bindings:  make(map[reflect.Type]*entry),
			instances: make(map[reflect.Type]any),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ── Registration ──────────────────────────────────────────────────────────────

// Extend registers d. A cached singleton for the same abstraction is dropped
// so the next resolution uses the new factory. Observers are notified after
// the binding is visible.
func (c *Container) Extend(d binding.Descriptor) (Extendable, error) {
	if d.Abstraction == nil {
		return c, ErrNilAbstraction
	}
	if d.Factory == nil {
		return c, fmt.Errorf("%w: %s", ErrNilFactory, d.Abstraction)
	}

	c.mu.Lock()
	if _, ok := c.bindings[d.Abstraction]; !ok {
		c.order = append(c.order, d.Abstraction)
	}
	c.bindings[d.Abstraction] = &entry{desc: d}
	delete(c.instances, d.Abstraction)
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	c.logger.Debug("binding extended", zap.Stringer("descriptor", d))
	for _, o := range observers {
		o.OnAmendment(d)
	}
	return c, nil
}

// ExtendAll registers every descriptor in order.
func (c *Container) ExtendAll(ds ...binding.Descriptor) error {
	var errs []error
	for _, d := range ds {
		if _, err := c.Extend(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers an amendment observer.
func (c *Container) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Resolve builds or returns the instance bound to t.
func (c *Container) Resolve(t reflect.Type) (any, error) {
	return c.resolve(t, nil, nil)
}

// resolution is the Resolver handed to factories. It carries the path of
// abstractions being built so cycles are caught. It is never mutated.
type resolution struct {
	c     *Container
	scope *Scope
	path  []reflect.Type
}

func (r resolution) Resolve(t reflect.Type) (any, error) {
	return r.c.resolve(t, r.scope, r.path)
}

// Building returns a Resolver for the dependencies of t.
func (c *Container) Building(t reflect.Type) binding.Resolver {
	return resolution{c: c, path: []reflect.Type{t}}
}

func (c *Container) resolve(t reflect.Type, scope *Scope, path []reflect.Type) (any, error) {
	for _, p := range path {
		if p == t {
			return nil, &ResolveError{Abstraction: t, Path: path, Err: ErrCircularDependency}
		}
	}

	c.mu.RLock()
	e, ok := c.bindings[t]
	inst, cached := c.instances[t]
	c.mu.RUnlock()

	next := resolution{c: c, scope: scope, path: append(path[:len(path):len(path)], t)}

	if !ok {
		return nil, &ResolveError{Abstraction: t, Path: path, Err: ErrServiceNotRegistered}
	}

	switch e.desc.Lifecycle {
	case binding.Singleton:
		if cached {
			return inst, nil
		}
		return c.singleton(t, e, next)
	case binding.Scoped:
		if scope == nil {
			return nil, &ResolveError{Abstraction: t, Path: path, Err: ErrScopedOnRoot}
		}
		return scope.scoped(t, e, next)
	default:
		return c.run(t, e.desc.Factory, next)
	}
}

// singleton builds t at most once per binding. A binding replaced while its
// factory ran is not cached.
func (c *Container) singleton(t reflect.Type, e *entry, next resolution) (any, error) {
	e.build.Lock()
	defer e.build.Unlock()

	c.mu.RLock()
	inst, cached := c.instances[t]
	c.mu.RUnlock()
	if cached {
		return inst, nil
	}

	v, err := c.run(t, e.desc.Factory, next)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.bindings[t] == e {
		c.instances[t] = v
	}
	c.mu.Unlock()
	return v, nil
}

// run executes a factory and fires the after-resolving callbacks.
func (c *Container) run(t reflect.Type, f binding.Factory, next resolution) (any, error) {
	v, err := f(next)
	if err != nil {
		var re *ResolveError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, &ResolveError{Abstraction: t, Path: next.path[:len(next.path)-1], Err: err}
	}
	c.fireAfterResolving(t, v)
	return v, nil
}

// ── Snapshot / Restore ────────────────────────────────────────────────────────

// Snapshot saves the bindings and the singleton instances resolved so far.
// A second Snapshot replaces the first.
func (c *Container) Snapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = c.state.clone()
	c.hasSaved = true
	c.logger.Debug("container snapshot", zap.Int("bindings", len(c.bindings)), zap.Int("instances", len(c.instances)))
	return nil
}

// Restore puts back the state saved by the last Snapshot. It can be called
// repeatedly. Without a Snapshot it does nothing.
func (c *Container) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSaved {
		return nil
	}
	c.state = c.saved.clone()
	c.logger.Debug("container restored", zap.Int("bindings", len(c.bindings)), zap.Int("instances", len(c.instances)))
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Bound reports whether t has a binding.
func (c *Container) Bound(t reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.bindings[t]
	return ok
}

// Resolved reports whether a singleton for t has been built and cached.
func (c *Container) Resolved(t reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.instances[t]
	return ok
}

// Forget drops the cached singleton for t; the binding stays.
func (c *Container) Forget(t reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.instances, t)
}

// Bindings returns the bound abstractions in first-registration order.
func (c *Container) Bindings() []reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]reflect.Type(nil), c.order...)
}

// Descriptor returns the descriptor currently bound to t.
func (c *Container) Descriptor(t reflect.Type) (binding.Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.bindings[t]
	if !ok {
		return binding.Descriptor{}, false
	}
	return e.desc, true
}

// ── Callbacks ─────────────────────────────────────────────────────────────────

// AfterResolving registers a callback fired after any factory ran. Cached
// singletons do not fire it again.
func (c *Container) AfterResolving(cb func(t reflect.Type, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

func (c *Container) fireAfterResolving(t reflect.Type, instance any) {
	c.mu.RLock()
	cbs := c.afterResolving
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(t, instance)
	}
}

// ── Generics helpers ──────────────────────────────────────────────────────────

// Resolve resolves T from r and type-asserts the result.
//
//	clock, err := container.Resolve[Clock](c)
func Resolve[T any](r binding.Resolver) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	v, err := r.Resolve(t)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s resolved to %T", ErrTypeMismatch, t, v)
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](r binding.Resolver) T {
	v, err := Resolve[T](r)
	if err != nil {
		panic(err)
	}
	return v
}
