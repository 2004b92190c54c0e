// Package queue buffers submitted prix between the API and the workers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a prix to the queue.
	// Returns false if the queue is full or closed and the prix was not enqueued.
	Enqueue(ctx context.Context, p model.Prix) bool

	// Dequeue returns a channel that receives prix in submission order.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.Prix

	// Len returns the current number of queued prix.
	Len(ctx context.Context) int

	// Close stops accepting prix. Buffered prix are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan model.Prix
	capacity int
	mu       sync.RWMutex
	closed   bool

	// readers tracks Dequeue goroutines. A prix taken off events whose reader
	// was cancelled before handing it over waits in stranded.
	readers    sync.WaitGroup
	strandedMu sync.Mutex
	stranded   []model.Prix
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan model.Prix, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds a prix to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, p model.Prix) bool { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	select {
	case q.events <- p:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return true
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives prix as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Prix {
	out := make(chan model.Prix)
	q.readers.Add(1)
	go func() {
		defer q.readers.Done()
		defer close(out)
		for {
			// Check cancellation before taking the next prix so none is lost.
			select {
			case <-ctx.Done():
				return
			default:
			}
			select {
			case <-ctx.Done():
				return
			case p, ok := <-q.events:
				if !ok {
					return
				}
				metrics.RecordQueueDequeue()
				q.updateGauges()
				select {
				case out <- p:
				case <-ctx.Done():
					q.strand(p)
					return
				}
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) strand(p model.Prix) { //nolint:gocritic // hugeParam
	q.strandedMu.Lock()
	q.stranded = append(q.stranded, p)
	q.strandedMu.Unlock()
}

// Drain closes the queue, waits for every Dequeue goroutine to exit and
// returns the prix none of them delivered. Cancel the Dequeue contexts first or
// Drain blocks until the readers have emptied the queue.
func (q *InMemoryQueue) Drain() []model.Prix {
	_ = q.Close()
	q.readers.Wait()

	q.strandedMu.Lock()
	left := q.stranded
	q.stranded = nil
	q.strandedMu.Unlock()

	for p := range q.events {
		left = append(left, p)
	}
	q.updateGauges()
	return left
}

// Len returns the current number of queued prix.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	q.updateGauges()
	return len(q.events)
}

// Close stops the queue. Calling it twice is a no-op.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
