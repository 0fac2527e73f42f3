package compose_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/compose"
	"github.com/km-arc/go-compose/framework/container"
	"github.com/km-arc/go-compose/framework/transition"
)

type Kind int

const (
	KindDependency Kind = iota
	KindOther
	KindGeneric
)

type Dependency interface{ ID() Kind }

type GenericDependency[T any] interface{ ID() Kind }

type Consumer interface{ DependencyID() Kind }

type dependency struct{ closed atomic.Int32 }

func (*dependency) ID() Kind { return KindDependency }

func (d *dependency) Close() error {
	d.closed.Add(1)
	return nil
}

type otherDependency struct{}

func (otherDependency) ID() Kind { return KindOther }

type genericDependency[T any] struct{}

func (genericDependency[T]) ID() Kind { return KindGeneric }

type consumer struct{ dep Dependency }

func (c *consumer) DependencyID() Kind { return c.dep.ID() }

func newDependency(binding.Resolver) (*dependency, error) { return &dependency{}, nil }

func newOther(binding.Resolver) (otherDependency, error) { return otherDependency{}, nil }

func newConsumer(r binding.Resolver) (*consumer, error) {
	dep, err := container.Resolve[Dependency](r)
	if err != nil {
		return nil, err
	}
	return &consumer{dep: dep}, nil
}

type dependencyProxy struct{ *transition.Proxy[Dependency] }

func (p dependencyProxy) ID() Kind { return p.Current().ID() }

type genericProxy[T any] struct {
	*transition.Proxy[GenericDependency[T]]
}

func (p genericProxy[T]) ID() Kind { return p.Current().ID() }

func proxies() *transition.Proxies {
	ps := transition.NewProxies()
	transition.RegisterProxy[Dependency](ps, func(p *transition.Proxy[Dependency]) Dependency {
		return dependencyProxy{p}
	})
	transition.RegisterProxy[GenericDependency[[]byte]](ps, func(p *transition.Proxy[GenericDependency[[]byte]]) GenericDependency[[]byte] {
		return genericProxy[[]byte]{p}
	})
	return ps
}

func newRoot(t *testing.T, declare func(s *binding.Collection), opts ...compose.Option) *compose.Root {
	t.Helper()
	s := binding.NewCollection()
	declare(s)
	root, err := compose.NewRoot(s, container.New(), append([]compose.Option{compose.WithProxies(proxies())}, opts...)...)
	require.NoError(t, err)
	return root
}
