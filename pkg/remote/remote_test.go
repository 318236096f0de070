package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/remote"
)

func TestProber(t *testing.T) {
	pings := 0
	var pingErr error
	p := remote.NewProber(func(context.Context) error {
		pings++
		return pingErr
	}, time.Hour)

	require.True(t, p.IsNetworkReachable(t.Context()))
	require.True(t, p.IsNetworkReachable(t.Context()))
	require.Equal(t, 1, pings, "result is reused within the interval")

	pingErr = errors.New("no route to host")
	p.Interval = 0
	require.False(t, p.IsNetworkReachable(t.Context()))
	require.Equal(t, 2, pings)
}

func TestSinks(t *testing.T) {
	require.False(t, remote.NopSink.IsCancelled())

	ctx, cancel := context.WithCancel(t.Context())
	var got int64
	sink := remote.ContextSink(ctx, func(n int64) { got = n })
	sink.OnProgress(42)
	require.EqualValues(t, 42, got)
	require.False(t, sink.IsCancelled())
	cancel()
	require.True(t, sink.IsCancelled())

	require.False(t, remote.FuncSink{}.IsCancelled())
	require.True(t, remote.AlwaysOnline.IsNetworkReachable(t.Context()))
}
