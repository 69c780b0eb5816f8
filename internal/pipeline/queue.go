package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/vrtbridge/internal/log"
	"firestige.xyz/vrtbridge/internal/metrics"
)

// ErrQueueClosed is returned by Pop once a closed queue has been drained.
var ErrQueueClosed = errors.New("vrtbridge: queue closed")

// Queue is a bounded FIFO between two stages. TryPush drops the item when
// the queue is full and logs a warning naming the queue. Only the producing
// side may Close it.
type Queue[T any] struct {
	name  string
	ch    chan T
	drops atomic.Uint64

	dropCounter prometheus.Counter
	depth       prometheus.Gauge
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](name string, capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		name:        name,
		ch:          make(chan T, capacity),
		dropCounter: metrics.QueueDropsTotal.WithLabelValues(name),
		depth:       metrics.QueueDepth.WithLabelValues(name),
	}
}

// TryPush enqueues item without blocking. It reports false when the item
// was dropped because the queue is full.
func (q *Queue[T]) TryPush(item T) bool {
	select {
	case q.ch <- item:
		q.depth.Set(float64(len(q.ch)))
		return true
	default:
		q.drops.Add(1)
		q.dropCounter.Inc()
		log.GetLogger().WithField("queue", q.name).Warnf("Queue [%s] is full, dropping item...", q.name)
		return false
	}
}

// Push enqueues item, waiting for room. Sources that can afford to slow
// down use it instead of TryPush.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	select {
	case q.ch <- item:
		q.depth.Set(float64(len(q.ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop blocks until an item is available, the queue is closed and empty, or
// ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	select {
	case item, ok := <-q.ch:
		if !ok {
			var zero T
			return zero, ErrQueueClosed
		}
		q.depth.Set(float64(len(q.ch)))
		return item, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Close marks the end of the stream. Items already queued can still be
// popped.
func (q *Queue[T]) Close() {
	close(q.ch)
}

// Name returns the queue name used in logs and metrics.
func (q *Queue[T]) Name() string { return q.name }

func (q *Queue[T]) Len() int { return len(q.ch) }

func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Drops returns how many items were discarded because the queue was full.
func (q *Queue[T]) Drops() uint64 { return q.drops.Load() }
