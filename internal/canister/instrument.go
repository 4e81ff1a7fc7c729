package canister

import (
	"context"
	"encoding/json"

	"github.com/vadiminshakov/truthboard/internal/instrument"
)

// Instrument wraps c so every call is tracked under service.
// CanisterID passes through untouched.
func Instrument(c Caller, in *instrument.Instrumenter, service string) Caller {
	if service == "" {
		service = c.CanisterID()
	}
	return &instrumented{next: c, in: in, service: service}
}

type instrumented struct {
	next    Caller
	in      *instrument.Instrumenter
	service string
}

func (i *instrumented) Query(ctx context.Context, method string, args any) (json.RawMessage, error) {
	return instrument.Call(ctx, i.in, i.service, method, func(ctx context.Context) (json.RawMessage, error) {
		return i.next.Query(ctx, method, args)
	})
}

func (i *instrumented) Update(ctx context.Context, method string, args any) (json.RawMessage, error) {
	return instrument.Call(ctx, i.in, i.service, method, func(ctx context.Context) (json.RawMessage, error) {
		return i.next.Update(ctx, method, args)
	})
}

func (i *instrumented) CanisterID() string {
	return i.next.CanisterID()
}
