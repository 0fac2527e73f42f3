package transition_test

import (
	"sync"
	"sync/atomic"

	"github.com/km-arc/go-compose/framework/transition"
)

type Kind int

const (
	KindDependency Kind = iota
	KindOther
	KindGeneric
)

type Dependency interface {
	ID() Kind
}

type GenericDependency[T any] interface {
	ID() Kind
}

// impl is a closable implementation that counts Close calls.
type impl struct {
	kind     Kind
	closed   atomic.Int32
	closeErr error
}

func (i *impl) ID() Kind { return i.kind }

func (i *impl) Close() error {
	i.closed.Add(1)
	return i.closeErr
}

type plain struct{ kind Kind }

func (p plain) ID() Kind { return p.kind }

type dependencyProxy struct{ *transition.Proxy[Dependency] }

func (p dependencyProxy) ID() Kind { return p.Current().ID() }

func wrapDependency(p *transition.Proxy[Dependency]) Dependency { return dependencyProxy{p} }

type genericProxy[T any] struct {
	*transition.Proxy[GenericDependency[T]]
}

func (p genericProxy[T]) ID() Kind { return p.Current().ID() }

func wrapGeneric[T any](p *transition.Proxy[GenericDependency[T]]) GenericDependency[T] {
	return genericProxy[T]{p}
}

func newImpl(kind Kind) func() (Dependency, error) {
	return func() (Dependency, error) { return &impl{kind: kind}, nil }
}

// tracker remembers every instance a factory produced.
type tracker struct {
	mu    sync.Mutex
	made  []*impl
	kind  Kind
	fails error
}

func (t *tracker) factory() (Dependency, error) {
	if t.fails != nil {
		return nil, t.fails
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := &impl{kind: t.kind}
	t.made = append(t.made, i)
	return i, nil
}

func (t *tracker) instances() []*impl {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*impl(nil), t.made...)
}

// countingObserver records observer callbacks.
type countingObserver struct {
	attached, changed, pruned, disposed, failed atomic.Int64
}

func (o *countingObserver) Attached(transition.Key)           { o.attached.Add(1) }
func (o *countingObserver) Changed(_ transition.Key, n int)   { o.changed.Add(int64(n)) }
func (o *countingObserver) Pruned(_ transition.Key, n int)    { o.pruned.Add(int64(n)) }
func (o *countingObserver) Disposed(_ transition.Key, n, f int) {
	o.disposed.Add(int64(n))
	o.failed.Add(int64(f))
}
