package transition

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Registry maps each (abstraction, original) pair to its Container and is
// the entry point for transitions.
type Registry struct {
	mu         sync.RWMutex
	containers map[Key]Bulk
	order      []Key
	excluded   map[reflect.Type]struct{}

	logger   *zap.Logger
	observer Observer
}

// NewRegistry creates an empty registry. A WithObserver option is handed to
// every container registered without an observer of its own.
func NewRegistry(opts ...Option) *Registry {
	o := newOptions(opts)
	return &Registry{
		containers: make(map[Key]Bulk),
		excluded:   make(map[reflect.Type]struct{}),
		logger:     o.logger,
		observer:   o.observer,
	}
}

// Register adds a container. Keys are unique.
func (r *Registry) Register(b Bulk) error {
	key := b.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.containers[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateContainer, key)
	}
	if r.observer != nil {
		b.observe(r.observer)
	}
	r.containers[key] = b
	r.order = append(r.order, key)

	r.logger.Debug("transition container registered", zap.Stringer("key", key))
	return nil
}

// Exclude marks an abstraction as ineligible: transitioning it is an error
// rather than a no-op.
func (r *Registry) Exclude(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.excluded[t] = struct{}{}
}

// Excluded reports whether t was marked ineligible.
func (r *Registry) Excluded(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.excluded[t]
	return ok
}

// Lookup returns the container registered under key.
func (r *Registry) Lookup(key Key) (Bulk, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.containers[key]
	return b, ok
}

// ForAbstraction returns every container whose abstraction is t, in
// registration order.
func (r *Registry) ForAbstraction(t reflect.Type) []Bulk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Bulk
	for _, key := range r.order {
		if key.Abstraction == t {
			out = append(out, r.containers[key])
		}
	}
	return out
}

// Containers describes every registered container in registration order.
func (r *Registry) Containers() []Info {
	for _, b := range r.all() {
		b.Live()
	}
	all := r.all()
	out := make([]Info, 0, len(all))
	for _, b := range all {
		out = append(out, b.Info())
	}
	return out
}

// Snapshot snapshots every container.
func (r *Registry) Snapshot() error {
	var errs []error
	for _, b := range r.all() {
		if err := b.Snapshot(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restore restores every container.
func (r *Registry) Restore() error {
	var errs []error
	for _, b := range r.all() {
		if err := b.Restore(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RevertType reverts every container for abstraction t. It reports whether
// any container was found.
func (r *Registry) RevertType(t reflect.Type) (bool, error) {
	if r.Excluded(t) {
		return false, &EligibilityError{Abstraction: t}
	}
	found := r.ForAbstraction(t)
	var errs []error
	for _, b := range found {
		if _, err := b.Revert(); err != nil {
			errs = append(errs, err)
		}
	}
	return len(found) > 0, errors.Join(errs...)
}

func (r *Registry) all() []Bulk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Bulk, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.containers[key])
	}
	return out
}

// ── Entry points ─────────────────────────────────────────────────────────────

// Transition changes every container bound to abstraction A. It reports
// whether a container was found; a missing container is not an error.
func Transition[A any](r *Registry, factory func() (A, error)) (bool, error) {
	if factory == nil {
		return false, ErrNilFactory
	}
	return TransitionFrom(r, ignoring(factory))
}

// TransitionFrom is Transition with a factory that receives the Resolver of
// whoever attaches a handle later; see Container.ChangeFrom.
func TransitionFrom[A any](r *Registry, factory func(Resolver) (A, error)) (bool, error) {
	if factory == nil {
		return false, ErrNilFactory
	}
	t := TypeOf[A]()
	if r.Excluded(t) {
		return false, &EligibilityError{Abstraction: t}
	}

	found := r.ForAbstraction(t)
	var errs []error
	changed := 0
	for _, b := range found {
		c, ok := b.(*Container[A])
		if !ok {
			continue
		}
		n, err := c.ChangeFrom(factory)
		changed += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Debug("transition",
		zap.Stringer("abstraction", t),
		zap.Int("containers", len(found)),
		zap.Int("handles", changed),
	)
	return len(found) > 0, errors.Join(errs...)
}

// TransitionKey changes the single container registered under
// (A, original).
func TransitionKey[A any](r *Registry, original reflect.Type, factory func() (A, error)) (bool, error) {
	if factory == nil {
		return false, ErrNilFactory
	}
	if r.Excluded(TypeOf[A]()) {
		return false, &EligibilityError{Abstraction: TypeOf[A]()}
	}
	c, ok := Find[A](r, original)
	if !ok {
		return false, nil
	}
	_, err := c.Change(factory)
	return true, err
}

// Find returns the typed container registered under (A, original).
func Find[A any](r *Registry, original reflect.Type) (*Container[A], bool) {
	b, ok := r.Lookup(Key{Abstraction: TypeOf[A](), Original: original})
	if !ok {
		return nil, false
	}
	c, ok := b.(*Container[A])
	return c, ok
}

// Revert changes every container bound to A back to its original
// implementation.
func Revert[A any](r *Registry) (bool, error) {
	return r.RevertType(TypeOf[A]())
}
