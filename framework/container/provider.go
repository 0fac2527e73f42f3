package container

import (
	"errors"
	"fmt"
	"sync"

	"github.com/km-arc/go-compose/framework/binding"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups related bindings.
//
// Register declares bindings into the collection and must not resolve
// anything. Boot runs after every provider was registered and the root was
// built, so it is safe to resolve there.
//
//	type ClockProvider struct{ container.BaseProvider }
//
//	func (p *ClockProvider) Register(services *binding.Collection) {
//	    binding.AddTransitional[Clock](services, newSystemClock)
//	}
type ServiceProvider interface {
	Register(services *binding.Collection)
	Boot(r binding.Resolver) error
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable no-op Boot.
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ binding.Resolver) error { return nil }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry collects providers before the root exists and boots them
// once it does. A provider registered after Boot has its bindings extended
// into the booted target and is booted immediately.
type ProviderRegistry struct {
	mu         sync.Mutex
	services   *binding.Collection
	providers  []ServiceProvider
	registered map[ServiceProvider]bool
	target     Extendable
	booted     bool
}

// NewProviderRegistry creates a registry that declares into services.
func NewProviderRegistry(services *binding.Collection) *ProviderRegistry {
	return &ProviderRegistry{
		services:   services,
		registered: make(map[ServiceProvider]bool),
	}
}

// Services returns the collection eager providers declare into.
func (r *ProviderRegistry) Services() *binding.Collection { return r.services }

// Register adds a provider and calls its Register method. Registering the
// same provider twice is a no-op.
func (r *ProviderRegistry) Register(provider ServiceProvider) error {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return nil
	}
	r.registered[provider] = true
	r.providers = append(r.providers, provider)
	booted, target := r.booted, r.target
	r.mu.Unlock()

	if !booted {
		provider.Register(r.services)
		return nil
	}

	late := binding.NewCollection()
	provider.Register(late)
	if err := late.Err(); err != nil {
		return fmt.Errorf("register %T: %w", provider, err)
	}
	for _, d := range late.Descriptors() {
		next, err := target.Extend(d)
		if err != nil {
			return fmt.Errorf("register %T: %w", provider, err)
		}
		target = next
	}

	r.mu.Lock()
	r.target = target
	r.mu.Unlock()

	if err := provider.Boot(target); err != nil {
		return fmt.Errorf("boot %T: %w", provider, err)
	}
	return nil
}

// Boot calls Boot on every registered provider in registration order. Only
// the first call has an effect.
func (r *ProviderRegistry) Boot(target Extendable) error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	r.target = target
	providers := append([]ServiceProvider(nil), r.providers...)
	r.mu.Unlock()

	var errs []error
	for _, p := range providers {
		if err := p.Boot(target); err != nil {
			errs = append(errs, fmt.Errorf("boot %T: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Booted reports whether Boot has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns the registered providers in order.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceProvider(nil), r.providers...)
}
