package ledger

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/truthboard/internal/canister"
	"github.com/vadiminshakov/truthboard/internal/domain"
)

const icpBalanceMethod = "account_balance"

// ICPLedger reads balances keyed by account identifier.
type ICPLedger struct {
	caller canister.Caller
	meta   Meta
}

// NewICPLedger creates a client for an account-identifier ledger.
func NewICPLedger(caller canister.Caller, meta Meta) *ICPLedger {
	return &ICPLedger{caller: caller, meta: meta}
}

type icpBalanceArgs struct {
	Account string `json:"account"`
}

type icpTokens struct {
	E8s json.RawMessage `json:"e8s"`
}

// BalanceOf returns the balance in e8s.
func (l *ICPLedger) BalanceOf(ctx context.Context, account domain.Account) (*big.Int, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}

	reply, err := l.caller.Query(ctx, icpBalanceMethod, icpBalanceArgs{Account: account.AccountIdentifier()})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: query balance", l.meta.Name)
	}

	var tokens icpTokens
	if err := json.Unmarshal(reply, &tokens); err != nil {
		return nil, errors.Wrapf(err, "%s: decode balance", l.meta.Name)
	}
	if len(tokens.E8s) == 0 {
		return nil, errors.Errorf("%s: balance reply has no e8s field", l.meta.Name)
	}

	n, err := parseNat(tokens.E8s)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: decode balance", l.meta.Name)
	}
	return n, nil
}

func (l *ICPLedger) Name() string    { return l.meta.Name }
func (l *ICPLedger) Symbol() string  { return l.meta.Symbol }
func (l *ICPLedger) Decimals() int32 { return l.meta.Decimals }
