// Package reconcile implements the conditional fetch shared by every cache:
// hand the server the revision id we hold, keep our copy when it answers
// with the same id, store its answer otherwise.
package reconcile

import "context"

// Cached is what a cache holds for a key. ID is empty when nothing is held.
type Cached[T any] struct {
	ID    string
	Value T
}

// Found reports whether there is a cached revision to offer as a hint.
func (c Cached[T]) Found() bool {
	return c.ID != ""
}

// FetchFunc asks the server for the current revision, passing hintID. When
// the returned id equals hintID the value is ignored and may be the zero
// value.
type FetchFunc[T any] func(ctx context.Context, hintID string) (id string, value T, err error)

// SaveFunc records a new revision in the cache.
type SaveFunc[T any] func(ctx context.Context, id string, value T) error

type Result[T any] struct {
	ID    string
	Value T
	// Fresh is set when the server had a revision we did not hold and Value
	// came from the server.
	Fresh bool
}

// Reconcile brings cached up to date with the server. Save is only called
// for a revision different from the cached one; when it fails the server's
// value is not returned.
func Reconcile[T any](ctx context.Context, cached Cached[T], fetch FetchFunc[T], save SaveFunc[T]) (Result[T], error) {
	id, value, err := fetch(ctx, cached.ID)
	if err != nil {
		return Result[T]{}, err
	}
	if cached.Found() && id == cached.ID {
		return Result[T]{ID: cached.ID, Value: cached.Value}, nil
	}
	if save != nil {
		if err := save(ctx, id, value); err != nil {
			return Result[T]{}, err
		}
	}
	return Result[T]{ID: id, Value: value, Fresh: true}, nil
}
