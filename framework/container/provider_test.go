package container_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/container"
)

// ── stub providers ────────────────────────────────────────────────────────────

type eagerProvider struct {
	container.BaseProvider
	registerCalled int
	bootCalled     int
}

func (p *eagerProvider) Register(services *binding.Collection) {
	p.registerCalled++
	binding.AddInstance[Clock](services, fixedClock{1})
}

func (p *eagerProvider) Boot(r binding.Resolver) error {
	p.bootCalled++
	_, err := container.Resolve[Clock](r)
	return err
}

// multiProvider registers multiple abstractions and relies on BaseProvider.Boot.
type multiProvider struct {
	container.BaseProvider
}

func (p *multiProvider) Register(services *binding.Collection) {
	binding.AddInstance[Clock](services, fixedClock{2})
	binding.AddTransient[Reporter](services, newReporter)
}

type failingProvider struct{ container.BaseProvider }

func (p *failingProvider) Register(*binding.Collection) {}

func (p *failingProvider) Boot(binding.Resolver) error { return errors.New("no database") }

func bootWith(t *testing.T, reg *container.ProviderRegistry) *container.Container {
	t.Helper()
	c := container.New()
	require.NoError(t, c.ExtendAll(reg.Services().Descriptors()...))
	return c
}

// ── ProviderRegistry ──────────────────────────────────────────────────────────

func TestRegistry_RegisterCalledImmediately(t *testing.T) {
	reg := container.NewProviderRegistry(binding.NewCollection())
	p := &eagerProvider{}

	require.NoError(t, reg.Register(p))

	assert.Equal(t, 1, p.registerCalled)
	assert.Equal(t, 0, p.bootCalled)
	assert.Equal(t, 1, reg.Services().Len())
}

func TestRegistry_BootCallsEveryProviderOnce(t *testing.T) {
	reg := container.NewProviderRegistry(binding.NewCollection())
	p := &eagerProvider{}
	require.NoError(t, reg.Register(p))
	require.NoError(t, reg.Register(&multiProvider{}))

	c := bootWith(t, reg)
	require.NoError(t, reg.Boot(c))
	require.NoError(t, reg.Boot(c))

	assert.True(t, reg.Booted())
	assert.Equal(t, 1, p.bootCalled)
	assert.Len(t, reg.Providers(), 2)
}

func TestRegistry_DuplicateRegistrationIgnored(t *testing.T) {
	reg := container.NewProviderRegistry(binding.NewCollection())
	p := &eagerProvider{}

	require.NoError(t, reg.Register(p))
	require.NoError(t, reg.Register(p))

	assert.Equal(t, 1, p.registerCalled)
	assert.Len(t, reg.Providers(), 1)
}

func TestRegistry_LaterBindingWins(t *testing.T) {
	reg := container.NewProviderRegistry(binding.NewCollection())
	require.NoError(t, reg.Register(&eagerProvider{}))
	require.NoError(t, reg.Register(&multiProvider{}))

	c := bootWith(t, reg)

	assert.Equal(t, 2, container.MustResolve[Reporter](c).Report())
}

func TestRegistry_LateProviderIsExtendedAndBooted(t *testing.T) {
	reg := container.NewProviderRegistry(binding.NewCollection())
	c := bootWith(t, reg)
	require.NoError(t, reg.Boot(c))

	p := &eagerProvider{}
	require.NoError(t, reg.Register(p))

	assert.Equal(t, 1, p.bootCalled)
	assert.True(t, c.Bound(reflect.TypeFor[Clock]()))
	assert.Equal(t, 0, reg.Services().Len())
}

func TestRegistry_BootErrorsAreJoined(t *testing.T) {
	reg := container.NewProviderRegistry(binding.NewCollection())
	require.NoError(t, reg.Register(&failingProvider{}))
	require.NoError(t, reg.Register(&multiProvider{}))

	err := reg.Boot(bootWith(t, reg))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
	assert.Contains(t, err.Error(), "failingProvider")
}
