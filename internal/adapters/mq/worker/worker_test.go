package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/prix/internal/adapters/mq/queue"
	worker "github.com/okian/prix/internal/adapters/mq/worker"
	model "github.com/okian/prix/internal/domain/model"
	logging "github.com/okian/prix/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	prixChan chan model.Prix
	once     sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{prixChan: make(chan model.Prix, 128)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.Prix {
	return mq.prixChan
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.prixChan) })
	return nil
}

func (mq *mockQueue) add(p model.Prix) { //nolint:gocritic // hugeParam
	mq.prixChan <- p
}

type mockProcessor struct {
	mu      sync.Mutex
	applied []string
	errors  map[string]error
	delay   time.Duration
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{errors: make(map[string]error)}
}

func (mp *mockProcessor) Process(ctx context.Context, p model.Prix) error { //nolint:gocritic // hugeParam
	if mp.delay > 0 {
		time.Sleep(mp.delay)
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if err, ok := mp.errors[p.ID]; ok {
		return err
	}
	mp.applied = append(mp.applied, p.ID)
	return nil
}

func (mp *mockProcessor) setError(id string, err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.errors[id] = err
}

func (mp *mockProcessor) appliedIDs() []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]string(nil), mp.applied...)
}

type failureRecorder struct {
	mu     sync.Mutex
	failed map[string]error
}

func (fr *failureRecorder) handle(ctx context.Context, p model.Prix, err error) { //nolint:gocritic // hugeParam
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.failed == nil {
		fr.failed = make(map[string]error)
	}
	fr.failed[p.ID] = err
}

func (fr *failureRecorder) get(id string) (error, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	err, ok := fr.failed[id]
	return err, ok
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		processor := newMockProcessor()
		failures := &failureRecorder{}

		convey.Convey("When creating a worker with options", func() {
			w := worker.NewInMemoryWorker(q, processor, worker.WithName("test-worker"), worker.WithLogger(logging.Get()))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, processor, worker.WithFailureHandler(failures.handle))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			convey.Convey("And a prix arrives", func() {
				q.add(model.Prix{ID: "prix-1"})

				convey.Convey("Then it is handed to the processor", func() {
					convey.So(eventually(func() bool { return len(processor.appliedIDs()) == 1 }), convey.ShouldBeTrue)
					convey.So(processor.appliedIDs()[0], convey.ShouldEqual, "prix-1")
				})
			})

			convey.Convey("And processing fails", func() {
				boom := errors.New("store unavailable")
				processor.setError("prix-2", boom)
				q.add(model.Prix{ID: "prix-2"})

				convey.Convey("Then the failure handler is told", func() {
					convey.So(eventually(func() bool { _, ok := failures.get("prix-2"); return ok }), convey.ShouldBeTrue)
					err, _ := failures.get("prix-2")
					convey.So(errors.Is(err, boom), convey.ShouldBeTrue)
					convey.So(processor.appliedIDs(), convey.ShouldBeEmpty)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue is closed", func() {
			w := worker.NewInMemoryWorker(q, processor)
			done := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(done)
			}()
			_ = q.Close()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, processor)
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()
			cancel()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		processor := newMockProcessor()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, newMockQueue(), processor)

			convey.Convey("Then it runs a single worker", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a single worker drains a real queue", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(64))
			pool := worker.NewPool(1, q, processor)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			var want []string
			for i := 0; i < 20; i++ {
				id := fmt.Sprintf("prix-%02d", i)
				want = append(want, id)
				convey.So(q.Enqueue(ctx, model.Prix{ID: id}), convey.ShouldBeTrue)
			}

			convey.Convey("Then prix are applied in submission order", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(processor.appliedIDs(), convey.ShouldResemble, want)
				convey.So(pool.Processed(), convey.ShouldEqual, 20)
				convey.So(pool.Busy(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When many workers process concurrently", func() {
			q := newMockQueue()
			pool := worker.NewPool(4, q, processor)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(producer int) {
					defer wg.Done()
					for j := 0; j < 20; j++ {
						q.add(model.Prix{ID: fmt.Sprintf("prix-%d-%d", producer, j)})
					}
				}(i)
			}
			wg.Wait()

			convey.Convey("Then every prix is processed exactly once", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				ids := processor.appliedIDs()
				convey.So(ids, convey.ShouldHaveLength, 100)
				seen := make(map[string]bool)
				for _, id := range ids {
					convey.So(seen[id], convey.ShouldBeFalse)
					seen[id] = true
				}
			})
		})

		convey.Convey("When failures happen inside the pool", func() {
			q := newMockQueue()
			failures := &failureRecorder{}
			processor.setError("bad", errors.New("rejected"))
			pool := worker.NewPool(2, q, processor, worker.WithFailureHandler(failures.handle))
			pool.Start(context.Background())

			q.add(model.Prix{ID: "bad"})
			q.add(model.Prix{ID: "good"})

			convey.Convey("Then the handler sees only the failed prix", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				_, bad := failures.get("bad")
				_, good := failures.get("good")
				convey.So(bad, convey.ShouldBeTrue)
				convey.So(good, convey.ShouldBeFalse)
				convey.So(pool.Processed(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When draining takes longer than the deadline", func() {
			q := newMockQueue()
			processor.delay = 50 * time.Millisecond
			pool := worker.NewPool(1, q, processor)
			pool.Start(context.Background())
			for i := 0; i < 10; i++ {
				q.add(model.Prix{ID: fmt.Sprintf("slow-%d", i)})
			}

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			convey.Convey("Then shutdown reports the timeout", func() {
				err := pool.Shutdown(ctx)
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}
