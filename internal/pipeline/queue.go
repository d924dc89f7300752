package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Queue feeds accepted submissions to a bounded pool of orchestrator
// workers. Bounding the pool (instead of one goroutine per request) keeps a
// submission burst from holding every image in memory at once.
type Queue struct {
	orch    *Orchestrator
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Task, n)
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(orch *Orchestrator, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		orch:    orch,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Task, 256),
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("pipeline worker up", "worker_id", workerID)

				for task := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					q.orch.Run(ctx, task)
					cancel()
				}

				q.logger.Info("pipeline worker down", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue hands a task to the pool. When the buffer is full the submitter
// blocks, which is the backpressure mechanism.
func (q *Queue) Enqueue(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("task dropped, queue already closed", "job_id", task.JobID)
		return nil
	}
	select {
	case q.ch <- task:
		q.logger.Info("job queued", "job_id", task.JobID)
	default:
		q.logger.Warn("task buffer full, submitter blocked until a worker frees up", "job_id", task.JobID)
		q.ch <- task
	}
	return nil
}

// Shutdown stops intake and drains in-flight tasks until ctx expires.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("gave up waiting for in-flight jobs", "err", ctx.Err())
	case <-done:
		q.logger.Info("all workers drained")
	}
}
