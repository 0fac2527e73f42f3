package app_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/km-arc/go-compose/framework/admin"
	"github.com/km-arc/go-compose/framework/app"
	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/compose"
	"github.com/km-arc/go-compose/framework/config"
	"github.com/km-arc/go-compose/framework/container"
	"github.com/km-arc/go-compose/framework/transition"
)

type Greeter interface{ Greet() string }

type hello struct{}

func (hello) Greet() string { return "hello" }

type greeterProxy struct{ *transition.Proxy[Greeter] }

func (p greeterProxy) Greet() string { return p.Current().Greet() }

type greeterProvider struct {
	container.BaseProvider
	booted bool
}

func (p *greeterProvider) Register(services *binding.Collection) {
	binding.AddTransitional[Greeter](services, func(binding.Resolver) (hello, error) { return hello{}, nil })
}

func (p *greeterProvider) Boot(r binding.Resolver) error {
	_, err := container.Resolve[Greeter](r)
	p.booted = err == nil
	return err
}

type Ticker interface{ Tick() int }

type ticker struct{}

func (ticker) Tick() int { return 1 }

type tickerProvider struct{ container.BaseProvider }

func (tickerProvider) Register(services *binding.Collection) {
	binding.AddSingleton[Ticker](services, func(binding.Resolver) (ticker, error) { return ticker{}, nil })
}

func newApp(t *testing.T) *app.Application {
	t.Helper()
	t.Setenv("APP_ENV", "testing")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("ADMIN_ENABLED", "")
	t.Setenv("METRICS_NAMESPACE", "kernel_test")

	a, err := app.New("testdata/missing.env")
	require.NoError(t, err)
	a.Proxies = transition.NewProxies()
	transition.RegisterProxy[Greeter](a.Proxies, func(p *transition.Proxy[Greeter]) Greeter { return greeterProxy{p} })
	return a
}

func TestApplication_CoreBindings(t *testing.T) {
	a := newApp(t)
	root, err := a.Build()
	require.NoError(t, err)

	cfg, err := compose.Resolve[*config.Config](root)
	require.NoError(t, err)
	assert.Same(t, a.Config, cfg)

	logger, err := compose.Resolve[*zap.Logger](root)
	require.NoError(t, err)
	assert.Same(t, a.Logger, logger)

	catalog, err := compose.Resolve[*admin.Catalog](root)
	require.NoError(t, err)
	assert.Same(t, a.Catalog, catalog)

	assert.True(t, a.IsTesting())
	assert.False(t, a.IsProduction())
}

func TestApplication_BuildBootsProvidersOnce(t *testing.T) {
	a := newApp(t)
	p := &greeterProvider{}
	require.NoError(t, a.Register(p))

	root, err := a.Build()
	require.NoError(t, err)
	assert.True(t, p.booted)

	again, err := a.Build()
	require.NoError(t, err)
	assert.Same(t, root, again)
	assert.Same(t, root, a.Root())
}

func TestApplication_LateProvider(t *testing.T) {
	a := newApp(t)
	root, err := a.Build()
	require.NoError(t, err)

	require.NoError(t, a.Register(&tickerProvider{}))

	tk, err := compose.Resolve[Ticker](root)
	require.NoError(t, err)
	assert.Equal(t, 1, tk.Tick())
}

func TestApplication_ServeAdmin(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.Register(&greeterProvider{}))
	root, err := a.Build()
	require.NoError(t, err)
	g := compose.MustResolve[Greeter](root)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/transitions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []admin.ContainerView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "app_test.Greeter", body.Data[0].Abstraction)
	assert.Equal(t, "hello", g.Greet())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not shut down")
	}
}

func TestApplication_RunWithoutAdmin(t *testing.T) {
	a := newApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, a.Run(ctx))
	assert.NotNil(t, a.Root())
}
