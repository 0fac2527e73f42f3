package container

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	ErrServiceNotRegistered = errors.New("service not registered")
	ErrCircularDependency   = errors.New("circular dependency detected during resolution")
	ErrScopedOnRoot         = errors.New("scoped services cannot be resolved from the root container, use a Scope")
	ErrScopeClosed          = errors.New("scope is closed")
	ErrTypeMismatch         = errors.New("resolved instance does not match requested type")
	ErrNilFactory           = errors.New("descriptor has no factory")
	ErrNilAbstraction       = errors.New("descriptor has no abstraction")
)

// ResolveError reports which abstraction failed and the path that led to it.
type ResolveError struct {
	Abstraction reflect.Type
	Path        []reflect.Type
	Err         error
}

func (e *ResolveError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("container: resolve %s: %v", e.Abstraction, e.Err)
	}
	return fmt.Sprintf("container: resolve %s (via %s): %v", e.Abstraction, chain(e.Path), e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

func chain(path []reflect.Type) string {
	names := make([]string, len(path))
	for i, t := range path {
		names[i] = t.String()
	}
	return strings.Join(names, " -> ")
}
