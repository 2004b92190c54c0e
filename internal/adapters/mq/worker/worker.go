// Package worker drains the prix queue and applies each prix through a Processor.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/pkg/logger"
	"github.com/okian/prix/pkg/metrics"
)

const (
	defaultWorkerCount    = 1
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Processor applies one prix.
type Processor interface {
	Process(ctx context.Context, p model.Prix) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, p model.Prix) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, p model.Prix) error { //nolint:gocritic // hugeParam
	return f(ctx, p)
}

// FailureHandler is told about every prix the processor rejected.
type FailureHandler func(ctx context.Context, p model.Prix, err error)

// Queue defines how workers receive prix.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Prix
}

// Worker processes prix from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed.
	Run(ctx context.Context)

	// Shutdown stops the worker after the prix in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	onFailure FailureHandler
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	prixChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case p, ok := <-prixChan:
			if !ok {
				return
			}
			if err := w.process(ctx, p); err != nil {
				w.logger.Error(ctx, "error processing prix", logger.String("prix_id", p.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker loop.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, p model.Prix) error { //nolint:gocritic // hugeParam
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.processor.Process(ctx, p); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process_error")
		if w.onFailure != nil {
			w.onFailure(ctx, p, err)
		}
		return fmt.Errorf("process prix %s: %w", p.ID, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	size    int

	busy      atomic.Int64
	processed atomic.Int64

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a new worker pool. A count below one means a single worker,
// which applies prix strictly in submission order.
func NewPool(workerCount int, queue Queue, processor Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		size:     workerCount,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	tracked := ProcessorFunc(func(ctx context.Context, p model.Prix) error {
		pool.busy.Add(1)
		pool.updateMetrics()
		defer func() {
			pool.busy.Add(-1)
			pool.processed.Add(1)
			pool.updateMetrics()
		}()
		return processor.Process(ctx, p)
	})

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, tracked, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	pool.updateMetrics()

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Busy returns the number of workers currently processing a prix.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Processed returns the number of prix handled, successful or not.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	busy := int(p.busy.Load())
	metrics.UpdateWorkerActiveCount(busy)
	metrics.UpdateWorkerIdleCount(p.size - busy)
}

// Shutdown closes the queue and waits for the workers to drain it. Workers
// still running when ctx or the pool timeout expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		}
		if timedOut {
			break
		}
	}

	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}
	if timedOut {
		for _, w := range p.workers {
			_ = w.Shutdown(shutdownCtx)
		}
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
