package transition

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrNotEligible        = errors.New("binding was declared after a closing transitional marker")
	ErrNilFactory         = errors.New("transition factory must not be nil")
	ErrNoProxy            = errors.New("no proxy factory registered")
	ErrNoOriginal         = errors.New("container has no original factory to revert to")
	ErrDuplicateContainer = errors.New("transition container already registered")
)

// EligibilityError reports a transition of an abstraction that the binding
// declarations excluded. It is a caller contract violation.
type EligibilityError struct {
	Abstraction reflect.Type
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("cannot transition %s: %v", e.Abstraction, ErrNotEligible)
}

func (e *EligibilityError) Unwrap() error {
	return ErrNotEligible
}

// DisposeError wraps a Close failure of a replaced implementation. The swap
// that caused it has already completed.
type DisposeError struct {
	Key Key
	Err error
}

func (e *DisposeError) Error() string {
	return fmt.Sprintf("dispose failed for %s: %v", e.Key, e.Err)
}

func (e *DisposeError) Unwrap() error {
	return e.Err
}

// FactoryError wraps a failure to build an implementation for one handle.
// The handle keeps its previous implementation.
type FactoryError struct {
	Key    Key
	Handle string
	Err    error
}

func (e *FactoryError) Error() string {
	if e.Handle == "" {
		return fmt.Sprintf("factory failed for %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("factory failed for %s (handle %s): %v", e.Key, e.Handle, e.Err)
}

func (e *FactoryError) Unwrap() error {
	return e.Err
}
