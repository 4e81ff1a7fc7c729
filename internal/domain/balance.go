package domain

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// UnavailableAmount is the amount shown for a ledger that could not be read.
const UnavailableAmount = "unavailable"

// BalanceEntry one ledger's balance for one account.
// Amounts are strings to avoid float precision issues in web/UI consumers.
type BalanceEntry struct {
	Ledger    string `json:"ledger"`
	Symbol    string `json:"symbol"`
	Raw       string `json:"raw,omitempty"`
	Amount    string `json:"amount"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// NewBalanceEntry normalizes a raw amount in smallest units.
func NewBalanceEntry(ledger, symbol string, raw *big.Int, decimals, precision int32) (BalanceEntry, error) {
	amount, err := FormatUnits(raw, decimals, precision)
	if err != nil {
		return BalanceEntry{}, err
	}
	return BalanceEntry{
		Ledger:    ledger,
		Symbol:    symbol,
		Raw:       raw.String(),
		Amount:    amount,
		Available: true,
	}, nil
}

// UnavailableBalance is the sentinel entry for a failed ledger read.
func UnavailableBalance(ledger, symbol string, cause error) BalanceEntry {
	e := BalanceEntry{
		Ledger: ledger,
		Symbol: symbol,
		Amount: UnavailableAmount,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}

// FormatUnits converts smallest units into a fixed precision decimal string.
// Extra digits are truncated, never rounded.
func FormatUnits(raw *big.Int, decimals, precision int32) (string, error) {
	if raw == nil {
		return "", errors.New("raw amount is nil")
	}
	if decimals < 0 || precision < 0 {
		return "", errors.Errorf("invalid scale: decimals=%d precision=%d", decimals, precision)
	}

	return decimal.NewFromBigInt(raw, -decimals).Truncate(precision).StringFixed(precision), nil
}

// Portfolio balances of one account across all ledgers.
type Portfolio struct {
	Account   string         `json:"account"`
	FetchedAt time.Time      `json:"fetched_at"`
	Entries   []BalanceEntry `json:"entries"`
}

// Degraded reports whether at least one ledger could not be read.
func (p Portfolio) Degraded() bool {
	for _, e := range p.Entries {
		if !e.Available {
			return true
		}
	}
	return false
}

// Entry returns the entry for the named ledger.
func (p Portfolio) Entry(ledger string) (BalanceEntry, bool) {
	for _, e := range p.Entries {
		if e.Ledger == ledger {
			return e, true
		}
	}
	return BalanceEntry{}, false
}
