package ledger

import (
	"context"
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/truthboard/internal/canister"
	"github.com/vadiminshakov/truthboard/internal/domain"
)

const icrc1BalanceMethod = "icrc1_balance_of"

// ICRC1Ledger reads balances keyed by owner and subaccount.
type ICRC1Ledger struct {
	caller canister.Caller
	meta   Meta
}

// NewICRC1Ledger creates a client for an ICRC-1 token ledger.
func NewICRC1Ledger(caller canister.Caller, meta Meta) *ICRC1Ledger {
	return &ICRC1Ledger{caller: caller, meta: meta}
}

type icrc1Account struct {
	Owner      string  `json:"owner"`
	Subaccount *string `json:"subaccount"`
}

// BalanceOf returns the balance in the token's smallest unit.
func (l *ICRC1Ledger) BalanceOf(ctx context.Context, account domain.Account) (*big.Int, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}

	arg := icrc1Account{Owner: account.Owner.String()}
	if account.Subaccount != nil {
		sub := hex.EncodeToString(account.Subaccount)
		arg.Subaccount = &sub
	}

	reply, err := l.caller.Query(ctx, icrc1BalanceMethod, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: query balance", l.meta.Name)
	}

	n, err := parseNat(reply)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: decode balance", l.meta.Name)
	}
	return n, nil
}

func (l *ICRC1Ledger) Name() string    { return l.meta.Name }
func (l *ICRC1Ledger) Symbol() string  { return l.meta.Symbol }
func (l *ICRC1Ledger) Decimals() int32 { return l.meta.Decimals }
