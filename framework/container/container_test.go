package container_test

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/container"
)

// ── fixtures ──────────────────────────────────────────────────────────────────

type Clock interface{ Now() int }

type Reporter interface{ Report() int }

type fixedClock struct{ t int }

func (c fixedClock) Now() int { return c.t }

type reporter struct{ clock Clock }

func (r *reporter) Report() int { return r.clock.Now() }

type session struct{ closed atomic.Int32 }

func (s *session) Now() int { return 0 }

func (s *session) Close() error {
	s.closed.Add(1)
	return nil
}

func newReporter(r binding.Resolver) (*reporter, error) {
	clock, err := container.Resolve[Clock](r)
	if err != nil {
		return nil, err
	}
	return &reporter{clock: clock}, nil
}

func build(t *testing.T, declare func(s *binding.Collection)) *container.Container {
	t.Helper()
	s := binding.NewCollection()
	declare(s)
	require.NoError(t, s.Err())
	c := container.New()
	require.NoError(t, c.ExtendAll(s.Descriptors()...))
	return c
}

// ── Lifecycles ────────────────────────────────────────────────────────────────

func TestContainer_Transient_NewInstanceEachResolve(t *testing.T) {
	var calls atomic.Int32
	c := build(t, func(s *binding.Collection) {
		binding.AddTransient[Clock](s, func(binding.Resolver) (*session, error) {
			calls.Add(1)
			return &session{}, nil
		})
	})

	a := container.MustResolve[Clock](c)
	b := container.MustResolve[Clock](c)

	assert.NotSame(t, a, b)
	assert.Equal(t, int32(2), calls.Load())
}

func TestContainer_Singleton_SameInstance(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddSingleton[Clock](s, func(binding.Resolver) (*session, error) { return &session{}, nil })
	})

	a := container.MustResolve[Clock](c)
	b := container.MustResolve[Clock](c)

	assert.Same(t, a, b)
	assert.True(t, c.Resolved(reflect.TypeFor[Clock]()))
}

func TestContainer_Singleton_BuiltOnceUnderContention(t *testing.T) {
	var calls atomic.Int32
	c := build(t, func(s *binding.Collection) {
		binding.AddSingleton[Clock](s, func(binding.Resolver) (*session, error) {
			calls.Add(1)
			return &session{}, nil
		})
	})

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := container.Resolve[Clock](c)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestContainer_Scoped_RequiresScope(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddScoped[Clock](s, func(binding.Resolver) (*session, error) { return &session{}, nil })
	})

	_, err := container.Resolve[Clock](c)
	assert.ErrorIs(t, err, container.ErrScopedOnRoot)
}

func TestContainer_Scoped_OncePerScopeAndClosed(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddScoped[Clock](s, func(binding.Resolver) (*session, error) { return &session{}, nil })
	})

	first := c.NewScope()
	second := c.NewScope()

	a1 := container.MustResolve[Clock](first)
	a2 := container.MustResolve[Clock](first)
	b := container.MustResolve[Clock](second)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)

	require.NoError(t, first.Close())
	assert.Equal(t, int32(1), a1.(*session).closed.Load())
	assert.Equal(t, int32(0), b.(*session).closed.Load())

	_, err := container.Resolve[Clock](first)
	assert.ErrorIs(t, err, container.ErrScopeClosed)
	assert.NoError(t, first.Close())
}

// ── Resolution ────────────────────────────────────────────────────────────────

func TestContainer_ResolvesDependencies(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddInstance[Clock](s, fixedClock{42})
		binding.AddTransient[Reporter](s, newReporter)
	})

	assert.Equal(t, 42, container.MustResolve[Reporter](c).Report())
}

func TestContainer_NotRegistered(t *testing.T) {
	c := container.New()

	_, err := c.Resolve(reflect.TypeFor[Clock]())

	var re *container.ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, reflect.TypeFor[Clock](), re.Abstraction)
	assert.ErrorIs(t, err, container.ErrServiceNotRegistered)
}

func TestContainer_CircularDependency(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddTransient[Clock](s, func(r binding.Resolver) (*session, error) {
			_, err := container.Resolve[Reporter](r)
			return &session{}, err
		})
		binding.AddSingleton[Reporter](s, newReporter)
	})

	_, err := container.Resolve[Reporter](c)

	require.ErrorIs(t, err, container.ErrCircularDependency)
	assert.Contains(t, err.Error(), "->")
	assert.False(t, c.Resolved(reflect.TypeFor[Reporter]()))
}

func TestContainer_FactoryErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	c := build(t, func(s *binding.Collection) {
		binding.AddTransient[Clock](s, func(binding.Resolver) (fixedClock, error) { return fixedClock{}, boom })
		binding.AddTransient[Reporter](s, newReporter)
	})

	_, err := container.Resolve[Reporter](c)

	require.ErrorIs(t, err, boom)
	var re *container.ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, reflect.TypeFor[Clock](), re.Abstraction)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[Reporter]()}, re.Path)
}

func TestContainer_TypeMismatch(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddInstance[Clock](s, fixedClock{1})
	})
	_, err := container.Resolve[fixedClock](c)
	assert.ErrorIs(t, err, container.ErrServiceNotRegistered)

	_, err = c.Extend(binding.Descriptor{
		Abstraction: reflect.TypeFor[Reporter](),
		Factory:     func(binding.Resolver) (any, error) { return fixedClock{}, nil },
	})
	require.NoError(t, err)
	_, err = container.Resolve[Reporter](c)
	assert.ErrorIs(t, err, container.ErrTypeMismatch)
}

func TestContainer_MustResolvePanics(t *testing.T) {
	assert.Panics(t, func() { container.MustResolve[Clock](container.New()) })
}

// ── Extend / observers ────────────────────────────────────────────────────────

func TestContainer_ExtendReplacesAndDropsCachedSingleton(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddInstance[Clock](s, fixedClock{1})
	})
	require.Equal(t, 1, container.MustResolve[Clock](c).Now())

	s := binding.NewCollection()
	binding.AddInstance[Clock](s, fixedClock{2})
	next, err := c.Extend(s.Descriptors()[0])
	require.NoError(t, err)

	assert.Same(t, c, next)
	assert.Equal(t, 2, container.MustResolve[Clock](c).Now())
	assert.Equal(t, []reflect.Type{reflect.TypeFor[Clock]()}, c.Bindings())
}

func TestContainer_ExtendRejectsIncompleteDescriptor(t *testing.T) {
	c := container.New()

	_, err := c.Extend(binding.Descriptor{})
	assert.ErrorIs(t, err, container.ErrNilAbstraction)

	_, err = c.Extend(binding.Descriptor{Abstraction: reflect.TypeFor[Clock]()})
	assert.ErrorIs(t, err, container.ErrNilFactory)
}

func TestContainer_SubscribeIsToldAboutAmendments(t *testing.T) {
	c := container.New()
	var seen []reflect.Type
	c.Subscribe(container.ObserverFunc(func(d binding.Descriptor) { seen = append(seen, d.Abstraction) }))

	s := binding.NewCollection()
	binding.AddInstance[Clock](s, fixedClock{1})
	binding.AddTransient[Reporter](s, newReporter)
	require.NoError(t, c.ExtendAll(s.Descriptors()...))

	assert.Equal(t, []reflect.Type{reflect.TypeFor[Clock](), reflect.TypeFor[Reporter]()}, seen)
}

func TestContainer_AfterResolving(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddSingleton[Clock](s, func(binding.Resolver) (fixedClock, error) { return fixedClock{3}, nil })
	})
	var fired []reflect.Type
	c.AfterResolving(func(t reflect.Type, _ any) { fired = append(fired, t) })

	container.MustResolve[Clock](c)
	container.MustResolve[Clock](c)

	assert.Equal(t, []reflect.Type{reflect.TypeFor[Clock]()}, fired)
}

func TestContainer_BoundAndForget(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddSingleton[Clock](s, func(binding.Resolver) (*session, error) { return &session{}, nil })
	})
	assert.True(t, c.Bound(reflect.TypeFor[Clock]()))
	assert.False(t, c.Bound(reflect.TypeFor[Reporter]()))

	a := container.MustResolve[Clock](c)
	c.Forget(reflect.TypeFor[Clock]())
	assert.False(t, c.Resolved(reflect.TypeFor[Clock]()))
	assert.NotSame(t, a, container.MustResolve[Clock](c))

	d, ok := c.Descriptor(reflect.TypeFor[Clock]())
	require.True(t, ok)
	assert.Equal(t, binding.Singleton, d.Lifecycle)
}

// ── Snapshot / Restore ────────────────────────────────────────────────────────

func TestContainer_SnapshotRestore_SingletonsAndBindings(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddSingleton[Clock](s, func(binding.Resolver) (*session, error) { return &session{}, nil })
	})
	before := container.MustResolve[Clock](c)
	require.NoError(t, c.Snapshot())

	s := binding.NewCollection()
	binding.AddInstance[Clock](s, fixedClock{9})
	binding.AddInstance[Reporter](s, &reporter{clock: fixedClock{9}})
	require.NoError(t, c.ExtendAll(s.Descriptors()...))
	require.Equal(t, 9, container.MustResolve[Clock](c).Now())

	require.NoError(t, c.Restore())
	assert.Same(t, before, container.MustResolve[Clock](c))
	assert.False(t, c.Bound(reflect.TypeFor[Reporter]()))

	require.NoError(t, c.ExtendAll(s.Descriptors()...))
	require.NoError(t, c.Restore())
	assert.Same(t, before, container.MustResolve[Clock](c))
}

func TestContainer_RestoreWithoutSnapshotIsNoop(t *testing.T) {
	c := build(t, func(s *binding.Collection) {
		binding.AddInstance[Clock](s, fixedClock{5})
	})
	require.NoError(t, c.Restore())
	assert.Equal(t, 5, container.MustResolve[Clock](c).Now())
}
