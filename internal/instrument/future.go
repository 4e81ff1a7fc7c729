package instrument

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ErrPanicked wraps a panic raised inside a deferred call.
var ErrPanicked = errors.New("remote call panicked")

// Future is the eventual result of a call started with Go.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go starts fn in its own goroutine. The request is registered before the
// goroutine is launched and settled before the result becomes visible.
func Go[T any](ctx context.Context, in *Instrumenter, service, method string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	c := in.begin(service, method)

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = errors.Wrap(ErrPanicked, fmt.Sprint(r))
				c.settle(nil, f.err)
			}
		}()

		f.value, f.err = fn(ctx)
		c.settle(f.value, f.err)
	}()

	return f
}

// Done is closed once the call has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the call settles or ctx is done. Giving up on a
// future does not cancel the call; it stays tracked until it settles.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
