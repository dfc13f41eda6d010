// Package telemetry holds the in-memory hot path for samples: the bounded
// global sample buffer and the live publish/subscribe bus.
package telemetry

import (
	"sync"

	"github.com/HerbHall/pulseboard/pkg/models"
)

// DefaultBufferCapacity is the global retention limit for the live tail.
const DefaultBufferCapacity = 500

// Buffer is a fixed-capacity, insertion-ordered store of the most recent
// samples across all devices. It is deliberately not indexed by device:
// it is a small global live tail, and callers filter by device id when
// they need a scoped view. Historical depth belongs to the journal.
type Buffer struct {
	mu       sync.RWMutex
	samples  []models.MetricSample
	capacity int
}

// NewBuffer creates a buffer retaining at most capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append pushes a sample, evicting the oldest when over capacity.
func (b *Buffer) Append(sample models.MetricSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, sample)
	if len(b.samples) > b.capacity {
		// Copy down rather than re-slicing so evicted entries are freed.
		n := copy(b.samples, b.samples[len(b.samples)-b.capacity:])
		b.samples = b.samples[:n]
	}
}

// Recent returns up to limit of the newest samples in insertion order.
// limit <= 0 returns everything retained.
func (b *Buffer) Recent(limit int) []models.MetricSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if limit > 0 && len(b.samples) > limit {
		start = len(b.samples) - limit
	}
	out := make([]models.MetricSample, len(b.samples)-start)
	copy(out, b.samples[start:])
	return out
}

// Len returns the number of samples currently retained.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}
