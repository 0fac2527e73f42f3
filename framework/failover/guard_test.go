package failover_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/compose"
	"github.com/km-arc/go-compose/framework/container"
	"github.com/km-arc/go-compose/framework/failover"
	"github.com/km-arc/go-compose/framework/transition"
)

type Quotes interface {
	Quote(symbol string) (float64, error)
}

var errDown = errors.New("upstream down")

// upstream fails while down is set.
type upstream struct{ down *atomic.Bool }

func (u upstream) Quote(string) (float64, error) {
	if u.down.Load() {
		return 0, errDown
	}
	return 100, nil
}

type cached struct{}

func (cached) Quote(string) (float64, error) { return 99, nil }

type quotesProxy struct{ *transition.Proxy[Quotes] }

func (p quotesProxy) Quote(s string) (float64, error) { return p.Current().Quote(s) }

func newGuard(t *testing.T, down *atomic.Bool, timeout time.Duration) *failover.Guard[Quotes] {
	t.Helper()
	ps := transition.NewProxies()
	transition.RegisterProxy[Quotes](ps, func(p *transition.Proxy[Quotes]) Quotes { return quotesProxy{p} })

	s := binding.NewCollection()
	binding.AddTransitional[Quotes](s, func(binding.Resolver) (upstream, error) { return upstream{down}, nil })
	root, err := compose.NewRoot(s, container.New(), compose.WithProxies(ps))
	require.NoError(t, err)

	g, err := failover.NewGuard[Quotes](root, func(binding.Resolver) (cached, error) { return cached{}, nil }, failover.Settings{
		Name:        "quotes",
		MaxFailures: 2,
		Timeout:     timeout,
	})
	require.NoError(t, err)
	return g
}

func quote(g *failover.Guard[Quotes]) (any, error) {
	return g.Execute(func(q Quotes) (any, error) { return q.Quote("ACME") })
}

func TestGuard_OpensAndFailsOver(t *testing.T) {
	var down atomic.Bool
	g := newGuard(t, &down, time.Minute)

	v, err := quote(g)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)

	down.Store(true)
	for range 2 {
		_, err = quote(g)
		assert.ErrorIs(t, err, errDown)
	}

	assert.Equal(t, gobreaker.StateOpen, g.State())
	assert.True(t, g.FailedOver())
	v, err = quote(g)
	require.NoError(t, err)
	assert.Equal(t, 99.0, v)
	assert.NoError(t, g.LastError())
}

func TestGuard_RecoversAfterTimeout(t *testing.T) {
	var down atomic.Bool
	g := newGuard(t, &down, 20*time.Millisecond)

	down.Store(true)
	for range 2 {
		_, _ = quote(g)
	}
	require.True(t, g.FailedOver())

	down.Store(false)
	require.Eventually(t, func() bool {
		return g.State() == gobreaker.StateHalfOpen
	}, time.Second, 5*time.Millisecond)
	assert.False(t, g.FailedOver())

	v, err := quote(g)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuard_UnresolvableTarget(t *testing.T) {
	root, err := compose.NewRoot(binding.NewCollection(), container.New())
	require.NoError(t, err)

	_, err = failover.NewGuard[Quotes](root, func(binding.Resolver) (cached, error) { return cached{}, nil }, failover.Settings{})
	assert.ErrorIs(t, err, container.ErrServiceNotRegistered)
}
