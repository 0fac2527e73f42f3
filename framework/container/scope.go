package container

import (
	"errors"
	"io"
	"reflect"
	"sync"

	"github.com/km-arc/go-compose/framework/binding"
)

// Scope resolves Scoped bindings once per scope. Singletons come from the
// root container; transients are built fresh.
type Scope struct {
	root *Container

	mu        sync.Mutex
	instances map[reflect.Type]any
	locks     map[reflect.Type]*sync.Mutex
	created   []any
	closed    bool
}

// NewScope creates a scope over c.
func (c *Container) NewScope() *Scope {
	return &Scope{
		root:      c,
		instances: make(map[reflect.Type]any),
		locks:     make(map[reflect.Type]*sync.Mutex),
	}
}

var _ binding.Resolver = (*Scope)(nil)

// Resolve builds or returns the instance bound to t within the scope.
func (s *Scope) Resolve(t reflect.Type) (any, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, &ResolveError{Abstraction: t, Err: ErrScopeClosed}
	}
	return s.root.resolve(t, s, nil)
}

func (s *Scope) scoped(t reflect.Type, e *entry, next resolution) (any, error) {
	s.mu.Lock()
	if inst, ok := s.instances[t]; ok {
		s.mu.Unlock()
		return inst, nil
	}
	l, ok := s.locks[t]
	if !ok {
		l = &sync.Mutex{}
		s.locks[t] = l
	}
	s.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	if inst, ok := s.instances[t]; ok {
		s.mu.Unlock()
		return inst, nil
	}
	s.mu.Unlock()

	v, err := s.root.run(t, e.desc.Factory, next)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[t] = v
	s.created = append(s.created, v)
	return v, nil
}

// Close closes every scoped instance that implements io.Closer, newest
// first, and makes the scope unusable.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	created := s.created
	s.created = nil
	s.instances = make(map[reflect.Type]any)
	s.mu.Unlock()

	var errs []error
	for i := len(created) - 1; i >= 0; i-- {
		if c, ok := created[i].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
