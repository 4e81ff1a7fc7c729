// Package balance aggregates account balances from independent ledgers.
package balance

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/truthboard/internal/domain"
	"github.com/vadiminshakov/truthboard/internal/observability"
)

const defaultPrecision = 4

// ErrAllLedgersFailed is returned when no ledger could be read.
var ErrAllLedgersFailed = errors.New("all ledgers failed")

// Ledger reads a balance in smallest units.
type Ledger interface {
	BalanceOf(ctx context.Context, account domain.Account) (*big.Int, error)
	Name() string
	Symbol() string
	Decimals() int32
}

// Source is a ledger plus the number of fractional digits shown for it.
type Source struct {
	Ledger    Ledger
	Precision int32
}

// Aggregator reads two ledgers concurrently and reconciles the results.
type Aggregator struct {
	sources [2]Source
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMetrics records per-ledger fetch outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithClock overrides the time source used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator over primary and secondary.
// A negative precision falls back to the default of four digits.
func NewAggregator(primary, secondary Source, logger *zap.Logger, opts ...Option) (*Aggregator, error) {
	if primary.Ledger == nil || secondary.Ledger == nil {
		return nil, errors.New("both ledgers are required")
	}
	if primary.Ledger.Name() == secondary.Ledger.Name() {
		return nil, errors.Errorf("ledger names must differ, got %q twice", primary.Ledger.Name())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		sources: [2]Source{withDefaults(primary), withDefaults(secondary)},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func withDefaults(s Source) Source {
	if s.Precision < 0 {
		s.Precision = defaultPrecision
	}
	return s
}

// Fetch queries both ledgers at once and waits for both to settle.
// A failed ledger yields an unavailable entry; only when both fail, or
// the account is invalid, an error is returned. Nothing is cached.
func (a *Aggregator) Fetch(ctx context.Context, account domain.Account) (domain.Portfolio, error) {
	if err := account.Validate(); err != nil {
		return domain.Portfolio{}, err
	}

	var (
		entries [2]domain.BalanceEntry
		errs    [2]error
	)

	// each goroutine reports its own error so one failure never cancels the other
	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			entries[i], errs[i] = a.fetchOne(ctx, src, account)
			return nil
		})
	}
	_ = g.Wait()

	if errs[0] != nil && errs[1] != nil {
		return domain.Portfolio{}, errors.Wrapf(ErrAllLedgersFailed, "%s: %v; %s: %v",
			a.sources[0].Ledger.Name(), errs[0], a.sources[1].Ledger.Name(), errs[1])
	}

	return domain.Portfolio{
		Account:   account.String(),
		FetchedAt: a.now(),
		Entries:   entries[:],
	}, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, src Source, account domain.Account) (domain.BalanceEntry, error) {
	l := src.Ledger

	entry, err := a.read(ctx, src, account)
	if err != nil {
		a.record(l.Name(), false)
		a.logger.Warn("ledger balance unavailable",
			zap.String("ledger", l.Name()),
			zap.String("account", account.String()),
			zap.Error(err))
		return domain.UnavailableBalance(l.Name(), l.Symbol(), err), err
	}

	a.record(l.Name(), true)
	return entry, nil
}

func (a *Aggregator) read(ctx context.Context, src Source, account domain.Account) (domain.BalanceEntry, error) {
	l := src.Ledger

	raw, err := l.BalanceOf(ctx, account)
	if err != nil {
		return domain.BalanceEntry{}, err
	}
	return domain.NewBalanceEntry(l.Name(), l.Symbol(), raw, l.Decimals(), src.Precision)
}

func (a *Aggregator) record(ledger string, success bool) {
	if a.metrics == nil {
		return
	}
	a.metrics.LedgerFetches.WithLabelValues(ledger, observability.StatusLabel(success)).Inc()
}
