package binding

import (
	"fmt"
	"reflect"

	"github.com/km-arc/go-compose/framework/transition"
)

// Lifecycle controls how long a resolved instance is reused.
type Lifecycle int

const (
	Transient Lifecycle = iota // new instance on every resolution
	Singleton                  // one instance per root
	Scoped                     // one instance per scope
)

func (l Lifecycle) String() string {
	switch l {
	case Transient:
		return "transient"
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	default:
		return fmt.Sprintf("lifecycle(%d)", int(l))
	}
}

// Resolver resolves an instance for an abstraction type.
type Resolver interface {
	Resolve(t reflect.Type) (any, error)
}

// Factory builds an instance, resolving its own dependencies from r.
type Factory func(r Resolver) (any, error)

// Descriptor declares one binding.
type Descriptor struct {
	Abstraction    reflect.Type
	Implementation reflect.Type
	Lifecycle      Lifecycle
	Factory        Factory
	Transitional   bool

	// adapter is set by the typed Add* helpers; it knows A statically.
	adapter adapter
	adapted bool
}

// Target bundles what adapting a transitional descriptor needs.
type Target struct {
	Registry *transition.Registry
	Proxies  *transition.Proxies
	Root     Resolver
	Options  []transition.Option
}

type adapter func(d Descriptor, target Target) (Factory, error)

// Adapted reports whether the descriptor's factory already yields proxies.
func (d Descriptor) Adapted() bool { return d.adapted }

// Adapt returns a descriptor whose factory yields proxies attached to the
// transition container for (Abstraction, Implementation). The container is
// created and registered on first use. Non-transitional and already adapted
// descriptors are returned unchanged.
func (d Descriptor) Adapt(target Target) (Descriptor, error) {
	if !d.Transitional || d.adapted {
		return d, nil
	}
	if d.adapter == nil {
		return d, fmt.Errorf("%w: %s", ErrNotAdaptable, d)
	}
	f, err := d.adapter(d, target)
	if err != nil {
		return d, err
	}
	out := d
	out.Factory = f
	out.adapted = true
	return out, nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s -> %s (%s)", typeName(d.Abstraction), typeName(d.Implementation), d.Lifecycle)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// adapterFor captures A so a type-erased descriptor can build a typed
// transition container later.
func adapterFor[A any]() adapter {
	return func(d Descriptor, target Target) (Factory, error) {
		wrap, ok := transition.LookupProxy[A](target.Proxies)
		if !ok {
			return nil, fmt.Errorf("%w for %s", transition.ErrNoProxy, typeName(d.Abstraction))
		}

		inner := d.Factory
		build := func(r Resolver) func() (A, error) {
			return func() (A, error) {
				var zero A
				v, err := inner(r)
				if err != nil {
					return zero, err
				}
				a, ok := v.(A)
				if !ok {
					return zero, fmt.Errorf("%w: %T does not implement %s", ErrNotImplemented, v, typeName(d.Abstraction))
				}
				return a, nil
			}
		}

		c, ok := transition.Find[A](target.Registry, d.Implementation)
		if !ok {
			var original func() (A, error)
			if target.Root != nil {
				original = build(target.Root)
			}
			c = transition.NewContainer[A](d.Implementation, original, target.Options...)
			if err := target.Registry.Register(c); err != nil {
				return nil, err
			}
		}

		return func(r Resolver) (any, error) {
			return c.AttachFrom(r, build(r), wrap)
		}, nil
	}
}
