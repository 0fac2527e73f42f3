// Package failover transitions a binding to a fallback implementation while
// a circuit breaker is open.
package failover

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/compose"
)

// Settings configures a Guard.
type Settings struct {
	Name        string
	MaxFailures uint32        // consecutive failures that open the breaker
	Timeout     time.Duration // open period before a half-open trial call
	Logger      *zap.Logger
}

// Guard runs calls against a transitional binding through a circuit
// breaker. When the breaker opens every consumer of A is transitioned to
// the fallback; when it half-opens they are reverted so the original is
// tried again.
type Guard[A any] struct {
	root   *compose.Root
	target A
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger

	toFallback func() (bool, error)

	mu         sync.Mutex
	failedOver bool
	lastErr    error
}

// NewGuard resolves A from root and guards it. fallback builds the
// implementation used while the breaker is open.
func NewGuard[A, I any](root *compose.Root, fallback func(binding.Resolver) (I, error), s Settings) (*Guard[A], error) {
	target, err := compose.Resolve[A](root)
	if err != nil {
		return nil, err
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	g := &Guard[A]{
		root:       root,
		target:     target,
		logger:     s.Logger,
		toFallback: func() (bool, error) { return compose.Transition[A](root, fallback) },
	}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: g.onStateChange,
	})
	return g, nil
}

func (g *Guard[A]) onStateChange(name string, from, to gobreaker.State) {
	g.logger.Warn("circuit breaker state changed",
		zap.String("breaker", name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)

	var err error
	switch to {
	case gobreaker.StateOpen:
		_, err = g.toFallback()
		g.setFailedOver(err == nil)
	case gobreaker.StateHalfOpen:
		_, err = compose.Revert[A](g.root)
		g.setFailedOver(err != nil)
	}
	if err != nil {
		g.logger.Error("failover transition failed", zap.String("breaker", name), zap.Error(err))
		g.mu.Lock()
		g.lastErr = err
		g.mu.Unlock()
	}
}

func (g *Guard[A]) setFailedOver(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failedOver = v
}

// Execute calls fn with the guarded proxy. Failures count against the
// breaker. While the breaker rejects calls fn still runs, against whatever
// implementation the proxy currently holds.
func (g *Guard[A]) Execute(fn func(A) (any, error)) (any, error) {
	v, err := g.cb.Execute(func() (any, error) { return fn(g.target) })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fn(g.target)
	}
	return v, err
}

// Target returns the guarded proxy.
func (g *Guard[A]) Target() A { return g.target }

// State returns the breaker state.
func (g *Guard[A]) State() gobreaker.State { return g.cb.State() }

// FailedOver reports whether consumers currently use the fallback.
func (g *Guard[A]) FailedOver() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failedOver
}

// LastError returns the last transition error, if any.
func (g *Guard[A]) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}
