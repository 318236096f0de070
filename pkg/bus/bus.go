// Package bus carries cache and transfer events from the coordinator to
// whoever presents them.
package bus

import (
	eventbus "github.com/asaskevich/EventBus"
)

type Publisher interface {
	Publish(topic string, args ...any)
}

type Bus interface {
	Publisher
	Subscribe(topic string, fn any) error
	Unsubscribe(topic string, fn any) error
}

// EventBus delivers events synchronously, in the publisher's goroutine.
type EventBus struct {
	inner eventbus.Bus
}

func New() *EventBus {
	return &EventBus{inner: eventbus.New()}
}

func (e *EventBus) Publish(topic string, args ...any) {
	e.inner.Publish(topic, args...)
}

func (e *EventBus) Subscribe(topic string, fn any) error {
	return e.inner.Subscribe(topic, fn)
}

func (e *EventBus) Unsubscribe(topic string, fn any) error {
	return e.inner.Unsubscribe(topic, fn)
}

// PublishCache reports a cache hit or miss.
func PublishCache(p Publisher, hit bool, e CacheEvent) {
	if hit {
		p.Publish(TopicCacheHit, e)
		return
	}
	p.Publish(TopicCacheMiss, e)
}

type discard struct{}

func (discard) Publish(string, ...any)        {}
func (discard) Subscribe(string, any) error   { return nil }
func (discard) Unsubscribe(string, any) error { return nil }

// Discard drops every event.
var Discard Bus = discard{}
