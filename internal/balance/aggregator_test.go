package balance

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/truthboard/internal/domain"
	"github.com/vadiminshakov/truthboard/internal/observability"
)

type stubLedger struct {
	name     string
	symbol   string
	decimals int32
	raw      *big.Int
	err      error
	delay    time.Duration
	started  chan struct{}
	release  chan struct{}
	calls    atomic.Int32
}

func (l *stubLedger) BalanceOf(ctx context.Context, _ domain.Account) (*big.Int, error) {
	l.calls.Add(1)
	if l.started != nil {
		l.started <- struct{}{}
	}
	if l.release != nil {
		<-l.release
	}
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.raw, nil
}

func (l *stubLedger) Name() string    { return l.name }
func (l *stubLedger) Symbol() string  { return l.symbol }
func (l *stubLedger) Decimals() int32 { return l.decimals }

func icp(raw int64, err error) *stubLedger {
	return &stubLedger{name: "icp", symbol: "ICP", decimals: 8, raw: big.NewInt(raw), err: err}
}

func truth(raw int64, err error) *stubLedger {
	return &stubLedger{name: "truth", symbol: "TRUTH", decimals: 8, raw: big.NewInt(raw), err: err}
}

var account = domain.Account{Owner: domain.Principal{0x04}}

func newAggregator(t *testing.T, primary, secondary Ledger, opts ...Option) *Aggregator {
	t.Helper()
	a, err := NewAggregator(Source{Ledger: primary, Precision: 4}, Source{Ledger: secondary, Precision: 4}, zap.NewNop(), opts...)
	require.NoError(t, err)
	return a
}

func TestAggregator_BothSucceed(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := newAggregator(t, icp(123456789, nil), truth(500000000, nil), WithClock(func() time.Time { return now }))

	p, err := a.Fetch(context.Background(), account)
	require.NoError(t, err)

	assert.Equal(t, "2vxsx-fae", p.Account)
	assert.Equal(t, now, p.FetchedAt)
	assert.False(t, p.Degraded())
	assert.Equal(t, []domain.BalanceEntry{
		{Ledger: "icp", Symbol: "ICP", Raw: "123456789", Amount: "1.2345", Available: true},
		{Ledger: "truth", Symbol: "TRUTH", Raw: "500000000", Amount: "5.0000", Available: true},
	}, p.Entries)
}

func TestAggregator_PartialFailure(t *testing.T) {
	a := newAggregator(t, icp(0, errors.New("ledger A unreachable")), truth(500000000, nil))

	p, err := a.Fetch(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, p.Degraded())

	failed, ok := p.Entry("icp")
	require.True(t, ok)
	assert.False(t, failed.Available)
	assert.Equal(t, domain.UnavailableAmount, failed.Amount)
	assert.Equal(t, "ledger A unreachable", failed.Error)

	good, ok := p.Entry("truth")
	require.True(t, ok)
	assert.Equal(t, "5.0000", good.Amount)
}

func TestAggregator_SecondaryFailure(t *testing.T) {
	a := newAggregator(t, icp(500000000, nil), truth(0, errors.New("trapped")))

	p, err := a.Fetch(context.Background(), account)
	require.NoError(t, err)

	good, _ := p.Entry("icp")
	assert.Equal(t, "5.0000", good.Amount)
	failed, _ := p.Entry("truth")
	assert.Equal(t, domain.UnavailableAmount, failed.Amount)
}

func TestAggregator_TotalFailure(t *testing.T) {
	a := newAggregator(t, icp(0, errors.New("a down")), truth(0, errors.New("b down")))

	done := make(chan error, 1)
	go func() {
		_, err := a.Fetch(context.Background(), account)
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrAllLedgersFailed)
		assert.Contains(t, err.Error(), "a down")
		assert.Contains(t, err.Error(), "b down")
	case <-time.After(time.Second):
		t.Fatal("Fetch hung on total failure")
	}
}

func TestAggregator_InvalidAccount(t *testing.T) {
	primary, secondary := icp(1, nil), truth(1, nil)
	a := newAggregator(t, primary, secondary)

	_, err := a.Fetch(context.Background(), domain.Account{})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
	assert.Equal(t, int32(0), primary.calls.Load())
	assert.Equal(t, int32(0), secondary.calls.Load())
}

func TestAggregator_QueriesRunConcurrently(t *testing.T) {
	primary, secondary := icp(1, nil), truth(2, nil)
	primary.started, secondary.started = make(chan struct{}, 1), make(chan struct{}, 1)
	release := make(chan struct{})
	primary.release, secondary.release = release, release

	a := newAggregator(t, primary, secondary)
	done := make(chan error, 1)
	go func() {
		_, err := a.Fetch(context.Background(), account)
		done <- err
	}()

	// both queries are in flight before either is allowed to finish
	for _, ch := range []chan struct{}{primary.started, secondary.started} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("ledger queries are not concurrent")
		}
	}
	close(release)
	require.NoError(t, <-done)
}

func TestAggregator_LatencyBoundedBySlowest(t *testing.T) {
	primary, secondary := icp(1, nil), truth(2, nil)
	primary.delay, secondary.delay = 100*time.Millisecond, 100*time.Millisecond
	a := newAggregator(t, primary, secondary)

	start := time.Now()
	_, err := a.Fetch(context.Background(), account)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func TestAggregator_NoCaching(t *testing.T) {
	primary, secondary := icp(1, nil), truth(2, nil)
	a := newAggregator(t, primary, secondary)

	for i := 0; i < 3; i++ {
		_, err := a.Fetch(context.Background(), account)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), primary.calls.Load())
	assert.Equal(t, int32(3), secondary.calls.Load())
}

func TestAggregator_Metrics(t *testing.T) {
	m := observability.NewMetrics("test")
	a := newAggregator(t, icp(0, errors.New("down")), truth(1, nil), WithMetrics(m))

	_, err := a.Fetch(context.Background(), account)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerFetches.WithLabelValues("icp", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerFetches.WithLabelValues("truth", "success")))
}

func TestNewAggregator_Validation(t *testing.T) {
	_, err := NewAggregator(Source{Ledger: icp(0, nil)}, Source{}, nil)
	assert.Error(t, err)

	_, err = NewAggregator(Source{Ledger: icp(0, nil)}, Source{Ledger: icp(0, nil)}, nil)
	assert.ErrorContains(t, err, "must differ")

	a, err := NewAggregator(Source{Ledger: icp(123456789, nil), Precision: -1}, Source{Ledger: truth(0, nil), Precision: 0}, nil)
	require.NoError(t, err)
	p, err := a.Fetch(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "1.2345", p.Entries[0].Amount)
	assert.Equal(t, "0", p.Entries[1].Amount)
}
