package transition

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Key identifies a Container: the abstraction consumers depend on and the
// implementation it was originally bound to.
type Key struct {
	Abstraction reflect.Type
	Original    reflect.Type
}

func (k Key) String() string {
	if k.Original == nil {
		return typeName(k.Abstraction)
	}
	return typeName(k.Abstraction) + " <- " + typeName(k.Original)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// Resolver is what an attaching caller builds dependencies through. It has
// the method set of binding.Resolver.
type Resolver interface {
	Resolve(t reflect.Type) (any, error)
}

// ignoring adapts a plain factory to one that takes a Resolver.
func ignoring[T any](f func() (T, error)) func(Resolver) (T, error) {
	if f == nil {
		return nil
	}
	return func(Resolver) (T, error) { return f() }
}

// Info is a point-in-time description of a Container.
type Info struct {
	Key          Key
	Handles      int
	Transitioned bool
	Snapshotted  bool
}

// Bulk is the type-erased view of a Container used by the Registry.
type Bulk interface {
	Key() Key
	Snapshot() error
	Restore() error
	Revert() (int, error)
	Live() int
	Info() Info

	observe(o Observer)
}

// Container tracks every live handle of one (abstraction, original) pair and
// applies bulk changes to all of them.
//
// Bulk operations are serialized by ops. Factories and Close run under ops
// only, never under mu, so a factory may resolve consumers of T and attach
// new handles to this same container.
type Container[T any] struct {
	key      Key
	original func() (T, error)
	logger   *zap.Logger

	ops sync.Mutex

	mu          sync.Mutex
	observer    Observer
	handles     []*Handle[T]
	active      func(Resolver) (T, error)
	savedActive func(Resolver) (T, error)
	snapshotted bool
	dirty       bool
	epoch       uint64 // bumped whenever active or the snapshot state changes
}

var _ Bulk = (*Container[any])(nil)

// NewContainer creates the container for abstraction T originally bound to
// the implementation type original. factory builds the original
// implementation and is used by Revert; it may be nil.
func NewContainer[T any](original reflect.Type, factory func() (T, error), opts ...Option) *Container[T] {
	o := newOptions(opts)
	return &Container[T]{
		key:      Key{Abstraction: TypeOf[T](), Original: original},
		original: factory,
		logger:   o.logger,
		observer: o.observer,
	}
}

// NewHandle creates a detached handle for T and the proxy that keeps it live.
func NewHandle[T any](current T) (*Handle[T], *Proxy[T]) {
	return newHandle(TypeOf[T](), current)
}

func (c *Container[T]) Key() Key { return c.key }

func (c *Container[T]) observe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observer == nil {
		c.observer = o
	}
}

// Add registers a handle with the container.
func (c *Container[T]) Add(h *Handle[T]) {
	c.mu.Lock()
	c.handles = append(c.handles, h)
	obs := c.observer
	c.mu.Unlock()
	attached(obs, c.key)
}

// attachState is what Attach reads before building outside the lock.
type attachState[T any] struct {
	epoch       uint64
	active      func(Resolver) (T, error)
	savedActive func(Resolver) (T, error)
	snapshotted bool
	dirty       bool
}

// Attach builds an implementation, wraps it in a new proxy and registers the
// proxy's handle. If the container has been transitioned, the active factory
// is used instead of original.
//
// The implementation is built without holding the container lock. If a bulk
// operation changed the container meanwhile, the build is discarded and
// retried, so a handle is never registered on a stale implementation.
func (c *Container[T]) Attach(original func() (T, error), wrap ProxyFactory[T]) (T, error) {
	return c.AttachFrom(nil, original, wrap)
}

// AttachFrom is Attach for a caller resolving through from. A factory set by
// ChangeFrom receives from, so dependencies it resolves share the caller's
// resolution path.
func (c *Container[T]) AttachFrom(from Resolver, original func() (T, error), wrap ProxyFactory[T]) (T, error) {
	var zero T
	if wrap == nil {
		return zero, fmt.Errorf("%w for %s", ErrNoProxy, typeName(c.key.Abstraction))
	}
	if original == nil {
		original = c.original
	}

	for {
		c.mu.Lock()
		st := attachState[T]{
			epoch:       c.epoch,
			active:      c.active,
			savedActive: c.savedActive,
			snapshotted: c.snapshotted,
			dirty:       c.dirty,
		}
		c.mu.Unlock()

		h, p, err := c.build(st, from, original)
		if err != nil {
			return zero, err
		}

		c.mu.Lock()
		if c.epoch != st.epoch {
			orphans := unreferenced(c.handles, h.values())
			c.mu.Unlock()
			newDisposer(c.key, c.logger).disposeAll(orphans)
			c.logger.Debug("handle attach retried", zap.Stringer("key", c.key))
			continue
		}
		c.handles = append(c.handles, h)
		n, obs := len(c.handles), c.observer
		c.mu.Unlock()

		attached(obs, c.key)
		c.logger.Debug("handle attached",
			zap.Stringer("key", c.key),
			zap.String("handle", h.id),
			zap.Int("handles", n),
		)
		return wrap(p), nil
	}
}

// build creates the implementation and handle for st. A handle attached
// after Snapshot is given the value it would have held at snapshot time, so
// Restore treats it like every other handle.
func (c *Container[T]) build(st attachState[T], from Resolver, original func() (T, error)) (*Handle[T], *Proxy[T], error) {
	ctor := ignoring(original)
	if st.active != nil {
		ctor = st.active
	}
	if ctor == nil {
		return nil, nil, &FactoryError{Key: c.key, Err: ErrNilFactory}
	}
	impl, err := ctor(from)
	if err != nil {
		return nil, nil, &FactoryError{Key: c.key, Err: err}
	}

	h, p := newHandle(c.key.Abstraction, impl)
	if !st.snapshotted {
		return h, p, nil
	}
	if !st.dirty {
		h.saveSnapshot(impl)
		return h, p, nil
	}
	seed := st.savedActive
	if seed == nil {
		seed = ignoring(original)
	}
	if seed == nil {
		return h, p, nil
	}
	snap, err := seed(from)
	if err != nil {
		return nil, nil, &FactoryError{Key: c.key, Handle: h.id, Err: err}
	}
	h.saveSnapshot(snap)
	return h, p, nil
}

// Change replaces the implementation of every live handle with a fresh
// factory result. Dead handles are pruned. It returns the number of handles
// changed; the error joins factory and dispose failures.
func (c *Container[T]) Change(factory func() (T, error)) (int, error) {
	if factory == nil {
		return 0, ErrNilFactory
	}
	f := ignoring(factory)
	return c.change(f, f)
}

// ChangeFrom is Change with a factory that also builds the implementation
// of handles attached later, receiving the attaching caller's Resolver.
// During the bulk change itself it receives nil.
func (c *Container[T]) ChangeFrom(factory func(Resolver) (T, error)) (int, error) {
	if factory == nil {
		return 0, ErrNilFactory
	}
	return c.change(factory, factory)
}

// change applies factory to every live handle and records active as the
// factory for handles attached later. nil active means the original.
func (c *Container[T]) change(factory, active func(Resolver) (T, error)) (int, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	live, pruned, orphans := c.prune()
	prevActive, prevDirty := c.active, c.dirty
	c.active = active
	c.dirty = true
	c.epoch++
	c.mu.Unlock()

	d := newDisposer(c.key, c.logger)
	d.disposeAll(orphans)

	var errs []error
	changed := 0
	for _, h := range live {
		next, err := factory(nil)
		if err != nil {
			errs = append(errs, &FactoryError{Key: c.key, Handle: h.id, Err: err})
			continue
		}
		replace(h, next, d)
		changed++
	}
	if len(live) > 0 && changed == 0 {
		// Nothing could be built; later attaches keep the previous factory.
		c.mu.Lock()
		c.active, c.dirty = prevActive, prevDirty
		c.epoch++
		c.mu.Unlock()
	}
	errs = append(errs, d.errs...)

	c.logger.Debug("transition changed",
		zap.Stringer("key", c.key),
		zap.Int("changed", changed),
		zap.Int("pruned", pruned),
		zap.Int("disposed", d.count()),
	)
	c.changed(changed, pruned, d)
	return changed, errors.Join(errs...)
}

// Snapshot saves the current implementation of every live handle. The
// previously saved implementation is disposed unless it is still current.
func (c *Container[T]) Snapshot() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	live, pruned, orphans := c.prune()
	c.savedActive = c.active
	c.snapshotted = true
	c.dirty = false
	c.epoch++
	c.mu.Unlock()

	d := newDisposer(c.key, c.logger)
	d.disposeAll(orphans)
	for _, h := range live {
		cur := h.Current()
		if prev, ok := h.Snapshotted(); ok && !same(prev, cur) {
			d.dispose(prev)
		}
		h.saveSnapshot(cur)
	}

	c.logger.Debug("transition snapshot",
		zap.Stringer("key", c.key),
		zap.Int("handles", len(live)),
		zap.Int("pruned", pruned),
	)
	c.changed(0, pruned, d)
	return errors.Join(d.errs...)
}

// Restore puts back the implementation each live handle held at the last
// Snapshot. Without a prior Snapshot it does nothing.
func (c *Container[T]) Restore() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if !c.snapshotted {
		c.mu.Unlock()
		return nil
	}
	live, pruned, orphans := c.prune()
	c.active = c.savedActive
	c.dirty = false
	c.epoch++
	c.mu.Unlock()

	d := newDisposer(c.key, c.logger)
	d.disposeAll(orphans)
	restored := 0
	for _, h := range live {
		snap, ok := h.Snapshotted()
		if !ok {
			continue
		}
		replace(h, snap, d)
		restored++
	}

	c.logger.Debug("transition restored",
		zap.Stringer("key", c.key),
		zap.Int("restored", restored),
		zap.Int("pruned", pruned),
	)
	c.changed(restored, pruned, d)
	return errors.Join(d.errs...)
}

// Revert changes every live handle back to the original implementation.
func (c *Container[T]) Revert() (int, error) {
	if c.original == nil {
		return 0, ErrNoOriginal
	}
	return c.change(ignoring(c.original), nil)
}

// Live prunes dead handles and returns the number that remain. While a bulk
// operation is running the handles belong to it, so Live only counts.
func (c *Container[T]) Live() int {
	if !c.ops.TryLock() {
		c.mu.Lock()
		defer c.mu.Unlock()
		n := 0
		for _, h := range c.handles {
			if h.IsLive() {
				n++
			}
		}
		return n
	}
	defer c.ops.Unlock()

	c.mu.Lock()
	live, pruned, orphans := c.prune()
	c.mu.Unlock()
	if pruned > 0 {
		d := newDisposer(c.key, c.logger)
		d.disposeAll(orphans)
		c.changed(0, pruned, d)
	}
	return len(live)
}

// Len returns the number of tracked handles without pruning.
func (c *Container[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *Container[T]) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		Key:          c.key,
		Handles:      len(c.handles),
		Transitioned: c.active != nil,
		Snapshotted:  c.snapshotted,
	}
}

// replace disposes the outgoing implementation before the new one becomes
// visible. An instance still held in the snapshot slot is kept.
func replace[T any](h *Handle[T], next T, d *disposer) {
	prev := h.Current()
	snap, hasSnap := h.Snapshotted()
	if !same(prev, next) && !(hasSnap && same(prev, snap)) {
		d.dispose(prev)
	}
	h.publish(next)
}

// prune drops dead handles for good and returns the live ones, the number
// dropped and the instances only the dropped handles referenced. Must hold
// c.mu; the caller disposes the orphans after releasing it.
func (c *Container[T]) prune() ([]*Handle[T], int, []any) {
	kept := make([]*Handle[T], 0, len(c.handles))
	var dead []*Handle[T]
	for _, h := range c.handles {
		if h.IsLive() {
			kept = append(kept, h)
		} else {
			dead = append(dead, h)
		}
	}
	c.handles = kept

	var orphans []any
	for _, h := range dead {
		orphans = append(orphans, unreferenced(kept, h.values())...)
	}
	return kept, len(dead), orphans
}

// unreferenced returns the values no handle in handles still holds.
func unreferenced[T any](handles []*Handle[T], values []any) []any {
	var out []any
	for _, v := range values {
		if !referenced(handles, v) {
			out = append(out, v)
		}
	}
	return out
}

func referenced[T any](handles []*Handle[T], v any) bool {
	for _, h := range handles {
		for _, held := range h.values() {
			if same(held, v) {
				return true
			}
		}
	}
	return false
}

func attached(obs Observer, key Key) {
	if obs != nil {
		obs.Attached(key)
	}
}

func (c *Container[T]) changed(changed, pruned int, d *disposer) {
	c.mu.Lock()
	obs := c.observer
	c.mu.Unlock()
	if obs == nil {
		return
	}
	if changed > 0 {
		obs.Changed(c.key, changed)
	}
	if pruned > 0 {
		obs.Pruned(c.key, pruned)
	}
	if n := d.count(); n > 0 {
		obs.Disposed(c.key, n, len(d.errs))
	}
}
