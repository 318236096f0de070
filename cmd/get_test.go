package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/types"
)

func TestRetryOffline(t *testing.T) {
	t.Run("retries while unreachable", func(t *testing.T) {
		calls := 0
		v, err := retryOffline(t.Context(), 3, func() (string, error) {
			calls++
			if calls < 2 {
				return "", types.ErrNetworkUnavailable
			}
			return "ok", nil
		})
		require.NoError(t, err)
		require.Equal(t, "ok", v)
		require.Equal(t, 2, calls)
	})

	t.Run("other errors are final", func(t *testing.T) {
		calls := 0
		boom := types.NewRemoteError(types.CodeNotFound, "gone")
		_, err := retryOffline(t.Context(), 3, func() (string, error) {
			calls++
			return "", boom
		})
		require.True(t, types.IsNotFound(err))
		require.Equal(t, 1, calls)
	})

	t.Run("gives up after the last retry", func(t *testing.T) {
		calls := 0
		_, err := retryOffline(t.Context(), 0, func() (int, error) {
			calls++
			return 0, types.ErrNetworkUnavailable
		})
		require.True(t, errors.Is(err, types.ErrNetworkUnavailable))
		require.Equal(t, 1, calls)
	})
}
