// Package app assembles the dashboard backend from its configuration.
package app

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/truthboard/config"
	"github.com/vadiminshakov/truthboard/internal/balance"
	"github.com/vadiminshakov/truthboard/internal/canister"
	"github.com/vadiminshakov/truthboard/internal/domain"
	"github.com/vadiminshakov/truthboard/internal/events"
	"github.com/vadiminshakov/truthboard/internal/instrument"
	"github.com/vadiminshakov/truthboard/internal/ledger"
	"github.com/vadiminshakov/truthboard/internal/loading"
	"github.com/vadiminshakov/truthboard/internal/observability"
	"github.com/vadiminshakov/truthboard/internal/storage/balancesnapshots"
	"github.com/vadiminshakov/truthboard/internal/web"
)

// Dashboard wires the loading store, instrumented ledgers, the balance
// aggregator and the HTTP surface together.
type Dashboard struct {
	Config       config.Config
	Metrics      *observability.Metrics
	Loading      *loading.Store
	Instrumenter *instrument.Instrumenter
	Gateway      *canister.Client
	Aggregator   *balance.Aggregator

	updates *events.Broadcaster[domain.LoadingStatus]
	logger  *zap.Logger
}

// New builds a dashboard without touching disk or the network.
func New(cfg config.Config, logger *zap.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	updates := events.NewLatestBroadcaster[domain.LoadingStatus]()
	store := loading.NewStore(
		loading.WithHistorySize(cfg.HistorySize),
		loading.WithBroadcaster(updates),
		loading.WithGauge(metrics.ActiveRequests),
	)

	in := instrument.New(store, logger.Named("instrument"),
		instrument.WithMetrics(metrics),
		instrument.WithTimeout(cfg.RequestTimeout),
	)

	gateway, err := canister.NewClient(cfg.Gateway,
		canister.WithRateLimit(cfg.RateLimit.InexactFloat64(), cfg.RateBurst),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gateway client")
	}

	primary, err := newLedger(gateway, in, cfg.Primary)
	if err != nil {
		return nil, err
	}
	secondary, err := newLedger(gateway, in, cfg.Secondary)
	if err != nil {
		return nil, err
	}

	aggregator, err := balance.NewAggregator(primary, secondary, logger.Named("balance"), balance.WithMetrics(metrics))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create balance aggregator")
	}

	return &Dashboard{
		Config:       cfg,
		Metrics:      metrics,
		Loading:      store,
		Instrumenter: in,
		Gateway:      gateway,
		Aggregator:   aggregator,
		updates:      updates,
		logger:       logger,
	}, nil
}

func newLedger(gateway *canister.Client, in *instrument.Instrumenter, lc config.LedgerConfig) (balance.Source, error) {
	client, err := ledger.New(lc.Kind, gateway.Canister(lc.CanisterID), ledger.Meta{
		Name:     lc.Name,
		Symbol:   lc.Symbol,
		Decimals: lc.Decimals,
	})
	if err != nil {
		return balance.Source{}, errors.Wrapf(err, "failed to create ledger %s", lc.Name)
	}
	return balance.Source{Ledger: ledger.Instrument(client, in, lc.Name), Precision: lc.Precision}, nil
}

// Canister returns a tracked stub for an arbitrary canister.
func (d *Dashboard) Canister(canisterID string) (canister.Caller, error) {
	if _, err := domain.ParsePrincipal(canisterID); err != nil {
		return nil, errors.Wrap(err, "incorrect canister id")
	}
	return canister.Instrument(d.Gateway.Canister(canisterID), d.Instrumenter, ""), nil
}

// Serve opens the snapshot WAL, then runs the refresher (when accounts are
// configured) and the HTTP server until ctx is done.
func (d *Dashboard) Serve(ctx context.Context) error {
	snapshots, err := balancesnapshots.NewWALStore(d.Config.WALDir)
	if err != nil {
		return errors.Wrap(err, "failed to open balance snapshot store")
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			d.logger.Warn("failed to close balance snapshot store", zap.Error(err))
		}
	}()

	refreshes := events.NewLatestBroadcaster[domain.Portfolio]()
	server := web.NewServer(d.Config.Listen, d.Loading, d.updates, d.Aggregator, snapshots,
		d.Metrics.Handler(), d.logger.Named("web"))
	server.Refreshes = refreshes

	var refresher *balance.Refresher
	if len(d.Config.Accounts) > 0 {
		refresher, err = balance.NewRefresher(d.Aggregator, balance.RefresherConfig{
			Accounts: d.Config.Accounts,
			Interval: d.Config.RefreshInterval,
			Store:    snapshots,
			Updates:  refreshes,
			Metrics:  d.Metrics,
		}, d.logger.Named("refresher"))
		if err != nil {
			return errors.Wrap(err, "failed to create refresher")
		}
	} else {
		d.logger.Info("no accounts configured, periodic refresh disabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(d.Config.TLSDomains) > 0 {
			return server.StartWithAutoTLS(ctx, d.Config.TLSDomains, d.Config.CertCacheDir)
		}
		return server.Start(ctx)
	})
	if refresher != nil {
		g.Go(func() error {
			if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
