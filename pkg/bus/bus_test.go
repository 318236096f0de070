package bus_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/bus"
)

func TestEventBus(t *testing.T) {
	b := bus.New()

	var got []bus.CacheEvent
	handler := func(e bus.CacheEvent) { got = append(got, e) }
	require.NoError(t, b.Subscribe(bus.TopicCacheHit, handler))

	b.Publish(bus.TopicCacheHit, bus.CacheEvent{Kind: bus.KindDirectory, RepoID: "r1", Path: "/"})
	bus.PublishCache(b, false, bus.CacheEvent{Kind: bus.KindFile})
	require.Len(t, got, 1)
	require.Equal(t, "directory r1:/", got[0].String())

	require.NoError(t, b.Unsubscribe(bus.TopicCacheHit, handler))
	b.Publish(bus.TopicCacheHit, bus.CacheEvent{Kind: bus.KindRepositories})
	require.Len(t, got, 1)
}
