package ledger

import (
	"context"
	"math/big"

	"github.com/vadiminshakov/truthboard/internal/domain"
	"github.com/vadiminshakov/truthboard/internal/instrument"
)

const balanceOfMethod = "balanceOf"

// Instrument wraps c so every BalanceOf is tracked as "<name>.balanceOf".
// Metadata getters are not remote and pass through.
func Instrument(c Client, in *instrument.Instrumenter, name string) Client {
	if name == "" {
		name = c.Name()
	}
	return &instrumented{Client: c, in: in, service: name}
}

type instrumented struct {
	Client
	in      *instrument.Instrumenter
	service string
}

func (i *instrumented) BalanceOf(ctx context.Context, account domain.Account) (*big.Int, error) {
	return instrument.Call(ctx, i.in, i.service, balanceOfMethod, func(ctx context.Context) (*big.Int, error) {
		return i.Client.BalanceOf(ctx, account)
	})
}
