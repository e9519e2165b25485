package engine

import (
	"context"
	"sync"
	"time"

	"github.com/trademaestro/trading-agent/internal/observ"
)

// Queue is a bounded FIFO that sheds load by dropping an existing element
// instead of blocking the producer: fresher data always beats older data.
// dropPick chooses the victim when full; nil or a -1 return drops the oldest.
type Queue[T any] struct {
	name     string
	capacity int
	dropPick func(items []T, incoming T) int

	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// NewQueue creates a queue with the given capacity. name labels the queue's
// metrics.
func NewQueue[T any](name string, capacity int, dropPick func(items []T, incoming T) int) *Queue[T] {
	if capacity <= 0 {
		capacity = 200
	}
	return &Queue[T]{
		name:     name,
		capacity: capacity,
		dropPick: dropPick,
		notify:   make(chan struct{}, 1),
	}
}

// Push enqueues v, evicting one element first if the queue is full. Returns
// true when an eviction happened. Never blocks.
func (q *Queue[T]) Push(v T) (dropped bool) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		idx := 0
		if q.dropPick != nil {
			if i := q.dropPick(q.items, v); i >= 0 && i < len(q.items) {
				idx = i
			}
		}
		q.items = append(q.items[:idx], q.items[idx+1:]...)
		dropped = true
		observ.IncCounter("queue_drops_total", map[string]string{"queue": q.name})
	}
	q.items = append(q.items, v)
	depth := len(q.items)
	q.mu.Unlock()

	observ.SetGauge("queue_depth", float64(depth), map[string]string{"queue": q.name})
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Pop dequeues the head, waiting up to timeout. ok is false on timeout or
// context cancellation, so consumers observe shutdown within one cycle.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, bool) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()
			observ.SetGauge("queue_depth", float64(depth), map[string]string{"queue": q.name})
			return v, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, false
		case <-timer.C:
			return zero, false
		case <-q.notify:
		}
	}
}

// Len returns the current depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
