package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-compose/framework/admin"
	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/compose"
	"github.com/km-arc/go-compose/framework/config"
	"github.com/km-arc/go-compose/framework/container"
	"github.com/km-arc/go-compose/framework/logging"
	"github.com/km-arc/go-compose/framework/metrics"
	"github.com/km-arc/go-compose/framework/providers"
	"github.com/km-arc/go-compose/framework/transition"
)

// shutdownTimeout bounds graceful shutdown of the admin server.
const shutdownTimeout = 10 * time.Second

// Application owns the binding collection, its providers and, once built,
// the composition root.
type Application struct {
	Config    *config.Config
	Logger    *zap.Logger
	Services  *binding.Collection
	Providers *container.ProviderRegistry
	Catalog   *admin.Catalog
	Metrics   *metrics.Collector
	Proxies   *transition.Proxies

	mu   sync.Mutex
	root *compose.Root
}

// New loads configuration, builds the logger and registers the core
// providers.
func New(envFiles ...string) (*Application, error) {
	cfg := config.Load(envFiles...)
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	services := binding.NewCollection()
	a := &Application{
		Config:    cfg,
		Logger:    logger,
		Services:  services,
		Providers: container.NewProviderRegistry(services),
		Catalog:   admin.NewCatalog(),
		Metrics:   metrics.NewCollector(cfg.Metrics.Namespace),
		Proxies:   transition.DefaultProxies,
	}

	// Registered first so application bindings see them as plain singletons.
	for _, p := range []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg},
		&providers.LogServiceProvider{Logger: logger},
		&providers.AdminServiceProvider{Catalog: a.Catalog, Metrics: a.Metrics},
	} {
		if err := a.Providers.Register(p); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(provider container.ServiceProvider) error {
	return a.Providers.Register(provider)
}

// Build creates the composition root over a fresh fallback container and
// boots every provider. Later calls return the same root.
func (a *Application) Build() (*compose.Root, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.root != nil {
		return a.root, nil
	}

	root, err := compose.NewRoot(a.Services,
		container.New(container.WithLogger(a.Logger)),
		compose.WithLogger(a.Logger),
		compose.WithProxies(a.Proxies),
		compose.WithObserver(a.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("build root: %w", err)
	}
	if err := a.Providers.Boot(root); err != nil {
		return nil, err
	}
	a.root = root
	return root, nil
}

// Root returns the built root, or nil before Build.
func (a *Application) Root() *compose.Root {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.root
}

// AdminHandler returns the admin API for the built root.
func (a *Application) AdminHandler() (http.Handler, error) {
	root, err := a.Build()
	if err != nil {
		return nil, err
	}
	return admin.Handler(root, a.Catalog,
		admin.WithLogger(a.Logger.Named("admin")),
		admin.WithMetrics(a.Metrics.Handler()),
	), nil
}

// Run builds the application and blocks until ctx is done. When the admin
// API is enabled it is served on Config.Admin.Addr and shut down
// gracefully on return.
func (a *Application) Run(ctx context.Context) error {
	defer func() { _ = a.Logger.Sync() }()

	if _, err := a.Build(); err != nil {
		return err
	}
	if !a.Config.Admin.Enabled {
		a.Logger.Info("application running", zap.String("env", a.Environment()))
		<-ctx.Done()
		return nil
	}

	ln, err := net.Listen("tcp", a.Config.Admin.Addr)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves the admin API on ln until ctx is done.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	h, err := a.AdminHandler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("admin listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("env", a.Environment()),
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Logger.Info("admin shutting down")
	return srv.Shutdown(shutdownCtx)
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.Config.App.Env }
func (a *Application) IsProduction() bool  { return a.Config.IsProduction() }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
