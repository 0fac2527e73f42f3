package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-compose/framework/admin"
	"github.com/km-arc/go-compose/framework/app"
	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/compose"
	"github.com/km-arc/go-compose/framework/container"
	"github.com/km-arc/go-compose/framework/failover"
	"github.com/km-arc/go-compose/framework/transition"
)

// Quotes prices a ticker symbol.
type Quotes interface {
	Quote(symbol string) (float64, error)
}

type quotesProxy struct{ *transition.Proxy[Quotes] }

func (p quotesProxy) Quote(symbol string) (float64, error) { return p.Current().Quote(symbol) }

var errUpstream = errors.New("upstream unavailable")

// flakyQuotes fails a third of the time.
type flakyQuotes struct{}

func (flakyQuotes) Quote(string) (float64, error) {
	if rand.IntN(3) == 0 {
		return 0, errUpstream
	}
	return 100 + rand.Float64(), nil
}

// staticQuotes always answers with the last known price.
type staticQuotes struct{}

func (staticQuotes) Quote(string) (float64, error) { return 100, nil }

func newStatic(binding.Resolver) (staticQuotes, error) { return staticQuotes{}, nil }

type QuotesServiceProvider struct {
	container.BaseProvider
	Catalog *admin.Catalog
}

func (p *QuotesServiceProvider) Register(services *binding.Collection) {
	binding.AddTransitional[Quotes](services, func(binding.Resolver) (flakyQuotes, error) { return flakyQuotes{}, nil })
	admin.Offer[Quotes](p.Catalog, "static", newStatic)
}

func main() {
	transition.RegisterProxy[Quotes](transition.DefaultProxies, func(p *transition.Proxy[Quotes]) Quotes {
		return quotesProxy{p}
	})

	application, err := app.New()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger := application.Logger

	if err := application.Register(&QuotesServiceProvider{Catalog: application.Catalog}); err != nil {
		logger.Fatal("register", zap.Error(err))
	}
	root, err := application.Build()
	if err != nil {
		logger.Fatal("build", zap.Error(err))
	}

	guard, err := failover.NewGuard[Quotes](root, newStatic, failover.Settings{
		Name:        "quotes",
		MaxFailures: application.Config.Failover.MaxFailures,
		Timeout:     application.Config.Failover.Timeout,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failover guard", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go poll(ctx, root, guard, logger)

	if err := application.Run(ctx); err != nil {
		logger.Fatal("run", zap.Error(err))
	}
}

func poll(ctx context.Context, root *compose.Root, guard *failover.Guard[Quotes], logger *zap.Logger) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		v, err := guard.Execute(func(q Quotes) (any, error) { return q.Quote("ACME") })
		logger.Info("quote",
			zap.Any("price", v),
			zap.Bool("failed_over", guard.FailedOver()),
			zap.Int("containers", len(root.Registry().Containers())),
			zap.Error(err),
		)
	}
}
