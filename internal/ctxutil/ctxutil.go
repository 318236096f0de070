// Package ctxutil turns context cancellation into the errors the caches
// report, and lets concurrent callers share work without sharing their
// cancellation.
package ctxutil

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/storacha/mirror/pkg/types"
)

// Cause returns nil while ctx is live. Once it is done it returns ctx.Err(),
// wrapped together with the cancellation cause when one was given, so both
// match with errors.Is.
func Cause(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if cause == err {
		return err
	}
	return fmt.Errorf("%w, cause: %w", err, cause)
}

// Cancelled reports a done ctx as types.ErrCancelled carrying its cause.
func Cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", types.ErrCancelled, Cause(ctx))
}

// Shared runs fn once for all callers asking for key at the same time. fn
// sees ctx's values but not its cancellation, so one caller giving up does
// not fail the others. A caller whose ctx ends stops waiting and gets
// Cancelled(ctx); the work itself runs to completion for the rest.
func Shared[T any](ctx context.Context, g *singleflight.Group, key string, fn func(ctx context.Context) (T, error)) (_ T, shared bool, _ error) {
	if ctx.Err() != nil {
		var zero T
		return zero, false, Cancelled(ctx)
	}
	detached := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, Cancelled(ctx)
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	}
}
