package transition

import (
	"reflect"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
)

// Handle is the mutable cell behind one proxy. It holds the current
// implementation and the one saved by the last Snapshot.
type Handle[T any] struct {
	id          string
	abstraction reflect.Type

	mu          sync.RWMutex
	current     T
	snapshot    T
	hasSnapshot bool

	proxy      weak.Pointer[Proxy[T]]
	released   atomic.Bool
	generation atomic.Uint64
}

// newHandle creates a handle and its proxy. The handle only keeps a weak
// pointer to the proxy; the proxy keeps the handle alive.
func newHandle[T any](abstraction reflect.Type, current T) (*Handle[T], *Proxy[T]) {
	h := &Handle[T]{
		id:          uuid.NewString(),
		abstraction: abstraction,
		current:     current,
	}
	p := &Proxy[T]{handle: h}
	h.proxy = weak.Make(p)
	return h, p
}

func (h *Handle[T]) ID() string                { return h.id }
func (h *Handle[T]) Abstraction() reflect.Type { return h.abstraction }

// Current returns the active implementation.
func (h *Handle[T]) Current() T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Snapshotted returns the implementation saved by the last Snapshot.
func (h *Handle[T]) Snapshotted() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot, h.hasSnapshot
}

// Generation counts how many times current has been replaced.
func (h *Handle[T]) Generation() uint64 { return h.generation.Load() }

// IsLive reports whether the proxy handed to the consumer still exists and
// has not been released.
func (h *Handle[T]) IsLive() bool {
	if h.released.Load() {
		return false
	}
	return h.proxy.Value() != nil
}

func (h *Handle[T]) release() { h.released.Store(true) }

func (h *Handle[T]) publish(next T) {
	h.mu.Lock()
	h.current = next
	h.mu.Unlock()
	h.generation.Add(1)
}

func (h *Handle[T]) saveSnapshot(v T) {
	h.mu.Lock()
	h.snapshot = v
	h.hasSnapshot = true
	h.mu.Unlock()
}

// values returns the instances held in both slots.
func (h *Handle[T]) values() []any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.hasSnapshot {
		return []any{h.current, h.snapshot}
	}
	return []any{h.current}
}
