// Package ledger reads account balances from ledger canisters.
package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/truthboard/internal/canister"
	"github.com/vadiminshakov/truthboard/internal/domain"
)

// Supported ledger kinds.
const (
	KindICP   = "icp"
	KindICRC1 = "icrc1"
)

// Client reads balances in the ledger's smallest unit.
type Client interface {
	BalanceOf(ctx context.Context, account domain.Account) (*big.Int, error)
	Name() string
	Symbol() string
	Decimals() int32
}

// Meta describes a ledger.
type Meta struct {
	Name     string
	Symbol   string
	Decimals int32
}

// New builds a ledger client of the given kind on top of caller.
func New(kind string, caller canister.Caller, meta Meta) (Client, error) {
	if meta.Name == "" {
		return nil, errors.New("ledger name is required")
	}
	if meta.Decimals < 0 {
		return nil, errors.Errorf("ledger %s: decimals must not be negative", meta.Name)
	}

	switch strings.ToLower(kind) {
	case KindICP:
		return NewICPLedger(caller, meta), nil
	case KindICRC1:
		return NewICRC1Ledger(caller, meta), nil
	default:
		return nil, errors.Errorf("unsupported ledger kind: %s", kind)
	}
}

// parseNat decodes a natural number that may be encoded as a JSON
// number or a decimal string.
func parseNat(raw json.RawMessage) (*big.Int, error) {
	text := strings.TrimSpace(string(raw))
	if unquoted, ok := strings.CutPrefix(text, `"`); ok {
		text = strings.TrimSuffix(unquoted, `"`)
	}
	text = strings.ReplaceAll(text, "_", "")

	n, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, errors.Errorf("invalid nat %q", string(raw))
	}
	if n.Sign() < 0 {
		return nil, errors.Errorf("negative balance %s", n)
	}
	return n, nil
}
