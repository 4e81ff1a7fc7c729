package balance

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/truthboard/internal/domain"
	"github.com/vadiminshakov/truthboard/internal/events"
	"github.com/vadiminshakov/truthboard/internal/observability"
	"github.com/vadiminshakov/truthboard/pkg/retrier"
)

const (
	defaultRefreshInterval = time.Minute
	defaultRetryInterval   = time.Second
	defaultMaxRetries      = 3
)

type fetcher interface {
	Fetch(ctx context.Context, account domain.Account) (domain.Portfolio, error)
}

type snapshotSaver interface {
	Save(snapshot domain.BalanceSnapshot) error
}

// Refresher periodically re-reads balances of the watched accounts.
// Retrying total failures is its job, not the Aggregator's.
type Refresher struct {
	fetcher  fetcher
	accounts []domain.Account
	interval time.Duration
	retrier  *retrier.Retrier
	store    snapshotSaver
	updates  *events.Broadcaster[domain.Portfolio]
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// RefresherConfig holds the Refresher collaborators. Store, Updates and
// Metrics are optional. Without a Retrier only total ledger failures are
// retried, three times, starting RetryInterval apart.
type RefresherConfig struct {
	Accounts      []domain.Account
	Interval      time.Duration
	Retrier       *retrier.Retrier
	RetryInterval time.Duration
	Store         snapshotSaver
	Updates       *events.Broadcaster[domain.Portfolio]
	Metrics       *observability.Metrics
}

// NewRefresher creates a refresher for the accounts in cfg.
func NewRefresher(f fetcher, cfg RefresherConfig, logger *zap.Logger) (*Refresher, error) {
	if f == nil {
		return nil, errors.New("fetcher is required")
	}
	if len(cfg.Accounts) == 0 {
		return nil, errors.New("at least one account is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	r := cfg.Retrier
	if r == nil {
		retryInterval := cfg.RetryInterval
		if retryInterval <= 0 {
			retryInterval = defaultRetryInterval
		}
		r = retrier.New(
			retrier.WithMaxRetries(defaultMaxRetries),
			retrier.WithInitialInterval(retryInterval),
			retrier.WithRetryIf(RetryAllLedgersFailed),
			retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
				logger.Warn("all ledgers failed, retrying",
					zap.Int("attempt", attempt),
					zap.Duration("wait", wait),
					zap.Error(err))
			}),
		)
	}

	return &Refresher{
		fetcher:  f,
		accounts: cfg.Accounts,
		interval: interval,
		retrier:  r,
		store:    cfg.Store,
		updates:  cfg.Updates,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// Run refreshes immediately and then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("starting balance refresh loop",
		zap.Int("accounts", len(r.accounts)),
		zap.Duration("interval", r.interval))

	r.RefreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("context done, stopping balance refresh loop")
			return ctx.Err()
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every watched account, logging failures.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, account := range r.accounts {
		if _, err := r.Refresh(ctx, account); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("balance refresh failed", zap.String("account", account.String()), zap.Error(err))
		}
	}
}

// Refresh fetches one account, retrying only when every ledger failed,
// then persists and publishes the result.
func (r *Refresher) Refresh(ctx context.Context, account domain.Account) (domain.Portfolio, error) {
	portfolio, err := retrier.DoWithData(r.retrier, ctx, func(ctx context.Context) (domain.Portfolio, error) {
		return r.fetcher.Fetch(ctx, account)
	})
	if err != nil {
		r.count("failure")
		return domain.Portfolio{}, errors.Wrapf(err, "refresh %s", account)
	}

	if portfolio.Degraded() {
		r.count("degraded")
	} else {
		r.count("success")
	}

	if r.store != nil {
		if err := r.store.Save(domain.NewBalanceSnapshot(portfolio)); err != nil {
			r.logger.Error("failed to persist balance snapshot", zap.String("account", portfolio.Account), zap.Error(err))
		}
	}
	r.updates.Publish(portfolio)

	return portfolio, nil
}

func (r *Refresher) count(status string) {
	if r.metrics != nil {
		r.metrics.PortfolioRefreshes.WithLabelValues(status).Inc()
	}
}

// RetryAllLedgersFailed is a retry predicate accepting only total ledger failures.
func RetryAllLedgersFailed(err error) bool {
	return errors.Is(err, ErrAllLedgersFailed)
}
