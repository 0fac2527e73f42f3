package binding

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/km-arc/go-compose/framework/transition"
)

var (
	ErrNoBinding      = errors.New("no binding declared for abstraction")
	ErrNotImplemented = errors.New("implementation does not satisfy abstraction")
	ErrNotAdaptable   = errors.New("descriptor cannot be made transitional")
	ErrNilConstructor = errors.New("constructor must not be nil")
)

// Collection is the ordered stream of binding declarations.
//
// AsTransitional is a marker: every binding declared before it becomes
// transitional. Bindings declared after the last marker are outside every
// eligibility window; transitioning them is reported as an error.
type Collection struct {
	mu          sync.Mutex
	descriptors []*Descriptor
	marker      int // descriptors[:marker] are covered by a marker; -1 before any marker
	errs        []error
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{marker: -1}
}

// Constructor builds an implementation of type I.
type Constructor[I any] func(r Resolver) (I, error)

// ── Declarations ─────────────────────────────────────────────────────────────

// Add declares that A is implemented by I with the given lifecycle.
func Add[A, I any](c *Collection, lifecycle Lifecycle, ctor Constructor[I]) *Collection {
	return add[A](c, lifecycle, ctor, false)
}

// AddTransient declares a binding that builds a new I on every resolution.
func AddTransient[A, I any](c *Collection, ctor Constructor[I]) *Collection {
	return add[A](c, Transient, ctor, false)
}

// AddSingleton declares a binding that builds I once per root.
func AddSingleton[A, I any](c *Collection, ctor Constructor[I]) *Collection {
	return add[A](c, Singleton, ctor, false)
}

// AddScoped declares a binding that builds I once per scope.
func AddScoped[A, I any](c *Collection, ctor Constructor[I]) *Collection {
	return add[A](c, Scoped, ctor, false)
}

// AddInstance declares a singleton bound to an existing value.
func AddInstance[A any](c *Collection, v A) *Collection {
	return add[A](c, Singleton, func(Resolver) (A, error) { return v, nil }, false)
}

// AddTransitional declares a transient binding whose consumers receive a
// proxy that can be transitioned later.
func AddTransitional[A, I any](c *Collection, ctor Constructor[I]) *Collection {
	return add[A](c, Transient, ctor, true)
}

// WithTransitional marks every binding of A declared so far as transitional.
func WithTransitional[A any](c *Collection) *Collection {
	t := transition.TypeOf[A]()

	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	for _, d := range c.descriptors {
		if d.Abstraction == t {
			d.Transitional = true
			found = true
		}
	}
	if !found {
		c.errs = append(c.errs, fmt.Errorf("WithTransitional: %w: %s", ErrNoBinding, t))
	}
	return c
}

// AsTransitional marks every interface binding declared so far as
// transitional and closes the current eligibility window.
func (c *Collection) AsTransitional() *Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.descriptors {
		if d.Abstraction.Kind() == reflect.Interface {
			d.Transitional = true
		}
	}
	c.marker = len(c.descriptors)
	return c
}

func add[A, I any](c *Collection, lifecycle Lifecycle, ctor Constructor[I], transitional bool) *Collection {
	abstraction := transition.TypeOf[A]()
	implementation := transition.TypeOf[I]()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ctor == nil {
		c.errs = append(c.errs, fmt.Errorf("%w: %s", ErrNilConstructor, abstraction))
		return c
	}
	if !satisfies(implementation, abstraction) {
		c.errs = append(c.errs, fmt.Errorf("%w: %s does not implement %s", ErrNotImplemented, implementation, abstraction))
		return c
	}

	c.descriptors = append(c.descriptors, &Descriptor{
		Abstraction:    abstraction,
		Implementation: implementation,
		Lifecycle:      lifecycle,
		Factory: func(r Resolver) (any, error) {
			v, err := ctor(r)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		Transitional: transitional,
		adapter:      adapterFor[A](),
	})
	return c
}

func satisfies(implementation, abstraction reflect.Type) bool {
	if abstraction.Kind() == reflect.Interface {
		return implementation.Implements(abstraction)
	}
	return implementation.AssignableTo(abstraction)
}

// ── Reading the stream ───────────────────────────────────────────────────────

// Descriptors returns a copy of the declarations in order.
func (c *Collection) Descriptors() []Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Descriptor, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		out = append(out, *d)
	}
	return out
}

// Excluded returns the abstractions declared after the last AsTransitional
// marker that no declaration made transitional.
func (c *Collection) Excluded() []reflect.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.marker < 0 {
		return nil
	}

	transitional := make(map[reflect.Type]bool)
	for _, d := range c.descriptors {
		if d.Transitional {
			transitional[d.Abstraction] = true
		}
	}
	seen := make(map[reflect.Type]bool)
	var out []reflect.Type
	for _, d := range c.descriptors[c.marker:] {
		if transitional[d.Abstraction] || seen[d.Abstraction] {
			continue
		}
		seen[d.Abstraction] = true
		out = append(out, d.Abstraction)
	}
	return out
}

// Len returns the number of declarations.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.descriptors)
}

// Err returns the declaration errors collected so far.
func (c *Collection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.errs...)
}
