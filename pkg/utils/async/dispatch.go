// Package async runs background work whose failures have no caller to
// return to. Errors and panics go to errs.Handle.
package async

import (
	"context"
	"runtime/debug"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
)

// Go runs handler in a goroutine bound to ctx. The returned channel is
// closed when handler returns.
func Go(ctx context.Context, handler func(ctx context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, handler)
	}()
	return done
}

// Dispatch runs handler detached from the cancellation of ctx, keeping its
// values (logger, request ID, clock). Use it for work that must finish after
// the request or connection that started it is gone.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)
	go run(detached, handler)
}

func run(ctx context.Context, handler func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			errs.Handle(ctx, goerr.New("panic in background task",
				goerr.V("recover", r),
				goerr.V("stack", string(debug.Stack()))))
		}
	}()

	if err := handler(ctx); err != nil {
		errs.Handle(ctx, err)
	}
}
