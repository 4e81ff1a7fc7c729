package domain

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name      string
		raw       int64
		decimals  int32
		precision int32
		expected  string
	}{
		{name: "Whole amount", raw: 500000000, decimals: 8, precision: 4, expected: "5.0000"},
		{name: "Truncates instead of rounding", raw: 123456789, decimals: 8, precision: 4, expected: "1.2345"},
		{name: "Just below next unit", raw: 99999999, decimals: 8, precision: 4, expected: "0.9999"},
		{name: "Zero", raw: 0, decimals: 8, precision: 4, expected: "0.0000"},
		{name: "Dust", raw: 1, decimals: 8, precision: 4, expected: "0.0000"},
		{name: "No fractional digits", raw: 250000000, decimals: 8, precision: 0, expected: "2"},
		{name: "Precision above decimals", raw: 15, decimals: 1, precision: 3, expected: "1.500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatUnits(big.NewInt(tt.raw), tt.decimals, tt.precision)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)

			// same raw balance always renders the same way
			again, err := FormatUnits(big.NewInt(tt.raw), tt.decimals, tt.precision)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestFormatUnits_Invalid(t *testing.T) {
	_, err := FormatUnits(nil, 8, 4)
	assert.Error(t, err)

	_, err = FormatUnits(big.NewInt(1), -1, 4)
	assert.Error(t, err)
}

func TestFormatUnits_LargeAmount(t *testing.T) {
	raw, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	got, err := FormatUnits(raw, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, "1234567890123456789012.3456", got)
}

func TestUnavailableBalance(t *testing.T) {
	e := UnavailableBalance("icp", "ICP", errors.New("connection refused"))
	assert.False(t, e.Available)
	assert.Equal(t, UnavailableAmount, e.Amount)
	assert.Equal(t, "connection refused", e.Error)
	assert.Empty(t, e.Raw)
}

func TestPortfolio(t *testing.T) {
	ok, err := NewBalanceEntry("truth", "TRUTH", big.NewInt(500000000), 8, 4)
	require.NoError(t, err)

	p := Portfolio{
		Account:   "2vxsx-fae",
		FetchedAt: time.Unix(1700000000, 0),
		Entries:   []BalanceEntry{UnavailableBalance("icp", "ICP", nil), ok},
	}
	assert.True(t, p.Degraded())

	e, found := p.Entry("truth")
	require.True(t, found)
	assert.Equal(t, "5.0000", e.Amount)
	assert.Equal(t, "500000000", e.Raw)

	_, found = p.Entry("missing")
	assert.False(t, found)

	snap := NewBalanceSnapshot(p)
	assert.True(t, snap.Degraded)
	assert.Equal(t, p.FetchedAt, snap.Timestamp)
	assert.Len(t, snap.Entries, 2)
}

func TestTrackedRequest_Apply(t *testing.T) {
	start := time.Unix(1700000000, 0)
	req := TrackedRequest{ID: "x", Service: "icp", Method: "account_balance", StartedAt: start}
	assert.False(t, req.Settled())

	settled := req.Apply(Outcome{EndedAt: start.Add(150 * time.Millisecond), Err: errors.New("rejected")})
	assert.True(t, settled.Settled())
	assert.Equal(t, 150*time.Millisecond, settled.Duration)
	assert.False(t, settled.Success)
	assert.Equal(t, "rejected", settled.Error)
	assert.False(t, req.Settled(), "original value must not change")
}

func TestNewLoadingStatus(t *testing.T) {
	assert.Equal(t, LoadingStatus{Count: 0, IsLoading: false}, NewLoadingStatus(0))
	assert.Equal(t, LoadingStatus{Count: 3, IsLoading: true}, NewLoadingStatus(3))
}
