package ctxutil_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	"github.com/storacha/mirror/internal/ctxutil"
	"github.com/storacha/mirror/pkg/types"
)

func TestCause(t *testing.T) {
	t.Run("live context", func(t *testing.T) {
		require.NoError(t, ctxutil.Cause(t.Context()))
	})

	t.Run("cancelled without cause", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := ctxutil.Cause(ctx)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, "context canceled", err.Error())
	})

	t.Run("cancelled with cause", func(t *testing.T) {
		quit := errors.New("user quit")
		ctx, cancel := context.WithCancelCause(t.Context())
		cancel(quit)
		err := ctxutil.Cause(ctx)
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, err, quit)
		require.Equal(t, "context canceled, cause: user quit", err.Error())
	})

	t.Run("deadline with cause", func(t *testing.T) {
		slow := errors.New("server too slow")
		ctx, cancel := context.WithDeadlineCause(t.Context(), time.Now().Add(-time.Second), slow)
		defer cancel()
		err := ctxutil.Cause(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.ErrorIs(t, err, slow)
	})
}

func TestCancelled(t *testing.T) {
	quit := errors.New("user quit")
	ctx, cancel := context.WithCancelCause(t.Context())
	cancel(quit)

	err := ctxutil.Cancelled(ctx)
	require.ErrorIs(t, err, types.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, quit)
}

func TestShared(t *testing.T) {
	t.Run("callers share one run", func(t *testing.T) {
		var (
			g       singleflight.Group
			calls   atomic.Int32
			entered atomic.Int32
		)
		release := make(chan struct{})
		fn := func(ctx context.Context) (string, error) {
			calls.Add(1)
			<-release
			return "listing", nil
		}

		results := make(chan string, 2)
		for range 2 {
			go func() {
				entered.Add(1)
				v, _, err := ctxutil.Shared(t.Context(), &g, "k", fn)
				if err != nil {
					v = err.Error()
				}
				results <- v
			}()
		}
		require.Eventually(t, func() bool { return entered.Load() == 2 && calls.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		close(release)
		require.Equal(t, "listing", <-results)
		require.Equal(t, "listing", <-results)
		require.EqualValues(t, 1, calls.Load())
	})

	t.Run("first caller cancelling does not fail the second", func(t *testing.T) {
		var (
			g    singleflight.Group
			once sync.Once
		)
		started := make(chan struct{})
		release := make(chan struct{})
		var workErr atomic.Value
		fn := func(ctx context.Context) (string, error) {
			once.Do(func() { close(started) })
			<-release
			if err := ctx.Err(); err != nil {
				workErr.Store(err)
				return "", err
			}
			return "listing", nil
		}

		firstCtx, cancelFirst := context.WithCancelCause(t.Context())
		firstErr := make(chan error, 1)
		go func() {
			_, _, err := ctxutil.Shared(firstCtx, &g, "k", fn)
			firstErr <- err
		}()
		<-started

		type result struct {
			v   string
			err error
		}
		second := make(chan result, 1)
		go func() {
			v, _, err := ctxutil.Shared(t.Context(), &g, "k", fn)
			second <- result{v, err}
		}()

		quit := errors.New("user quit")
		cancelFirst(quit)
		err := <-firstErr
		require.ErrorIs(t, err, types.ErrCancelled)
		require.ErrorIs(t, err, quit)

		close(release)
		res := <-second
		require.NoError(t, res.err)
		require.Equal(t, "listing", res.v)
		require.Nil(t, workErr.Load())
	})

	t.Run("errors reach every caller", func(t *testing.T) {
		var g singleflight.Group
		boom := errors.New("boom")
		_, _, err := ctxutil.Shared(t.Context(), &g, "k", func(context.Context) (int, error) {
			return 0, boom
		})
		require.ErrorIs(t, err, boom)
	})
}
