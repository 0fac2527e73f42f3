// Package providers holds the service providers every application registers.
package providers

import (
	"go.uber.org/zap"

	"github.com/km-arc/go-compose/framework/admin"
	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/config"
	"github.com/km-arc/go-compose/framework/container"
	"github.com/km-arc/go-compose/framework/metrics"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the loaded configuration.
//
// Bound abstractions:
//   - *config.Config
type ConfigServiceProvider struct {
	container.BaseProvider
	Config *config.Config
}

func (p *ConfigServiceProvider) Register(services *binding.Collection) {
	binding.AddInstance[*config.Config](services, p.Config)
}

// ── LogServiceProvider ────────────────────────────────────────────────────────

// LogServiceProvider binds the root logger.
//
// Bound abstractions:
//   - *zap.Logger
type LogServiceProvider struct {
	container.BaseProvider
	Logger *zap.Logger
}

func (p *LogServiceProvider) Register(services *binding.Collection) {
	binding.AddInstance[*zap.Logger](services, p.Logger)
}

// ── AdminServiceProvider ──────────────────────────────────────────────────────

// AdminServiceProvider binds the transition catalog and the metrics
// collector used by the admin API.
//
// Bound abstractions:
//   - *admin.Catalog
//   - *metrics.Collector
type AdminServiceProvider struct {
	container.BaseProvider
	Catalog *admin.Catalog
	Metrics *metrics.Collector
}

func (p *AdminServiceProvider) Register(services *binding.Collection) {
	binding.AddInstance[*admin.Catalog](services, p.Catalog)
	binding.AddInstance[*metrics.Collector](services, p.Metrics)
}
