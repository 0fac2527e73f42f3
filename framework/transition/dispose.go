package transition

import (
	"io"
	"reflect"

	"go.uber.org/zap"
)

// disposer closes replaced implementations during one bulk operation.
// A value is closed at most once per operation.
type disposer struct {
	key    Key
	logger *zap.Logger
	closed []any
	errs   []error
}

func newDisposer(key Key, logger *zap.Logger) *disposer {
	return &disposer{key: key, logger: logger}
}

func (d *disposer) dispose(v any) {
	if isNil(v) {
		return
	}
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	for _, c := range d.closed {
		if same(c, v) {
			return
		}
	}
	d.closed = append(d.closed, v)

	if err := closer.Close(); err != nil {
		d.logger.Warn("dispose failed",
			zap.Stringer("key", d.key),
			zap.String("type", reflect.TypeOf(v).String()),
			zap.Error(err),
		)
		d.errs = append(d.errs, &DisposeError{Key: d.key, Err: err})
	}
}

func (d *disposer) disposeAll(vs []any) {
	for _, v := range vs {
		d.dispose(v)
	}
}

func (d *disposer) count() int { return len(d.closed) }

// same reports whether a and b are the same instance. Values of
// non-comparable dynamic types are never considered the same.
func same(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return !va.IsValid() && !vb.IsValid()
	}
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
