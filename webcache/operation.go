// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package webcache

import "context"

// Operation is a cancellable background cache operation.
type Operation interface {
	// Cancel cancels the operation.  If it has not completed, its
	// completion is called with context.Canceled.
	Cancel()

	// Done is closed after the completion has returned.
	Done() <-chan struct{}
}

type operation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (o *operation) Cancel()               { o.cancel() }
func (o *operation) Done() <-chan struct{} { return o.done }

// StartOperation runs fn on a new goroutine with a context derived from ctx
// and calls completion exactly once.  If the context ends before fn
// returns, completion receives the context's error and fn's result is
// discarded.  completion may be nil.
func StartOperation(ctx context.Context, fn func(context.Context) (Result, error), completion func(Result, error)) Operation {
	ctx, cancel := context.WithCancel(ctx)
	op := &operation{cancel: cancel, done: make(chan struct{})}

	type result struct {
		res Result
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := fn(ctx)
		ch <- result{res, err}
	}()

	go func() {
		defer close(op.done)
		defer cancel()

		var r result
		select {
		case r = <-ch:
			if err := ctx.Err(); err != nil {
				r = result{err: err}
			}
		case <-ctx.Done():
			r = result{err: ctx.Err()}
		}
		if completion != nil {
			completion(r.res, r.err)
		}
	}()
	return op
}
