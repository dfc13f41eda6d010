package telemetry

import (
	"sync"

	"github.com/HerbHall/pulseboard/pkg/models"
	"go.uber.org/zap"
)

// SampleHandler receives one published sample.
type SampleHandler func(sample models.MetricSample)

// Bus fans newly ingested samples out to live subscribers. Publish is
// synchronous: handlers run in the publisher's goroutine, in registration
// order, against the registration set as observed at call time. There is
// no buffering and no replay; a subscriber registered after a publish never
// sees that publish.
type Bus struct {
	mu       sync.RWMutex
	handlers []handlerEntry
	nextID   uint64
	logger   *zap.Logger
}

type handlerEntry struct {
	id      uint64
	handler SampleHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish delivers the sample to every currently registered handler,
// attempting each exactly once. Handlers registered or removed while a
// publish is in flight do not affect the in-flight delivery set.
func (b *Bus) Publish(sample models.MetricSample) {
	b.mu.RLock()
	entries := make([]handlerEntry, len(b.handlers))
	copy(entries, b.handlers)
	b.mu.RUnlock()

	for _, e := range entries {
		b.safeCall(e.handler, sample)
	}
}

// Subscribe registers a handler and returns an idempotent unsubscribe
// function that is immediately effective against future publishes.
func (b *Bus) Subscribe(handler SampleHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.handlers {
			if e.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount returns the number of registered handlers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus) safeCall(handler SampleHandler, sample models.MetricSample) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("sample handler panicked",
				zap.String("device_id", sample.DeviceID),
				zap.Any("panic", r),
			)
		}
	}()
	handler(sample)
}
