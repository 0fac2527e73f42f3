package compose

import (
	"errors"
	"fmt"

	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/container"
	"github.com/km-arc/go-compose/framework/transition"
)

var (
	// ErrNoFallback is returned by NewRoot without a fallback resolver.
	ErrNoFallback = errors.New("compose: root needs a fallback resolver")

	// ErrSharedTarget is returned by TransitionTo when N is a singleton.
	// Every consumer would share one instance, and the next transition
	// would close it while the fallback still serves it.
	ErrSharedTarget = errors.New("compose: transition target is a singleton")
)

// Resolve resolves T from the root.
func Resolve[T any](r *Root) (T, error) {
	return container.Resolve[T](r)
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](r *Root) T {
	return container.MustResolve[T](r)
}

// Transition changes every live consumer of A to a fresh instance built by
// ctor, once per consumer. ctor resolves its own dependencies from the root;
// a dependency that needs A itself is a container.ErrCircularDependency.
//
// It reports whether A has transition containers. An abstraction that was
// never declared transitional is not an error; one declared after the last
// AsTransitional marker is a *transition.EligibilityError.
func Transition[A, I any](r *Root, ctor func(binding.Resolver) (I, error)) (bool, error) {
	if ctor == nil {
		return false, transition.ErrNilFactory
	}
	deps := r.Building(transition.TypeOf[A]())
	return transition.TransitionFrom(r.registry, func(from transition.Resolver) (A, error) {
		var zero A
		res := binding.Resolver(deps)
		if from != nil {
			// Attaching consumer: continue its resolution path.
			res = from
		}
		i, err := ctor(res)
		if err != nil {
			return zero, err
		}
		a, ok := any(i).(A)
		if !ok {
			return zero, fmt.Errorf("%w: %T does not implement %s", binding.ErrNotImplemented, i, transition.TypeOf[A]())
		}
		return a, nil
	})
}

// TransitionTo changes A to the implementation bound to N in the root, one
// fresh N per consumer. N bound as a singleton is ErrSharedTarget.
func TransitionTo[A, N any](r *Root) (bool, error) {
	n := transition.TypeOf[N]()
	if d, ok := r.Descriptor(n); ok && d.Lifecycle == binding.Singleton {
		return false, fmt.Errorf("%w: %s", ErrSharedTarget, n)
	}
	return Transition[A](r, container.Resolve[N])
}

// MustTransition is like Transition but panics on error, including
// eligibility violations.
func MustTransition[A, I any](r *Root, ctor func(binding.Resolver) (I, error)) bool {
	ok, err := Transition[A](r, ctor)
	if err != nil {
		panic(err)
	}
	return ok
}

// Revert changes every live consumer of A back to its original
// implementation.
func Revert[A any](r *Root) (bool, error) {
	return transition.Revert[A](r.registry)
}
