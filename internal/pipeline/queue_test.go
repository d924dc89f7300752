package pipeline

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/moatazm17/PicDo-sub000/constants"
)

// blockingJobs lets the test observe and control worker concurrency through
// the first status transition of each run.
type blockingJobs struct {
	*fakeJobs
	mu      sync.Mutex
	started []string
	release chan struct{}
}

func (b *blockingJobs) Transition(ctx context.Context, id string, from, to constants.JobStatus) error {
	b.mu.Lock()
	b.started = append(b.started, id)
	b.mu.Unlock()
	<-b.release
	return ctx.Err()
}

func (b *blockingJobs) startedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.started)
}

var _ = Describe("Queue", func() {
	It("runs tasks on a bounded number of workers", func() {
		jobs := &blockingJobs{fakeJobs: newFakeJobs(), release: make(chan struct{})}
		orch := NewOrchestrator(jobs, &fakeImages{}, &fakeExtractor{}, &fakeClassifier{}, nil)
		q := NewQueue(orch, nil, WithWorkers(2), WithQueueSize(8))
		defer func() {
			close(jobs.release)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			q.Shutdown(ctx)
		}()

		for i := 0; i < 5; i++ {
			Expect(q.Enqueue(context.Background(), Task{JobID: "j"})).To(Succeed())
		}

		Eventually(jobs.startedCount).Should(Equal(2))
		Consistently(jobs.startedCount, 100*time.Millisecond).Should(Equal(2))
	})

	It("drains queued tasks on shutdown", func() {
		jobs := newFakeJobs()
		orch := NewOrchestrator(jobs, &fakeImages{}, &fakeExtractor{text: "t"},
			&fakeClassifier{result: nil, err: context.Canceled}, nil)
		q := NewQueue(orch, nil, WithWorkers(1))

		Expect(q.Enqueue(context.Background(), Task{JobID: "j1"})).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		q.Shutdown(ctx)

		Expect(q.Enqueue(context.Background(), Task{JobID: "j2"})).To(Succeed())
		Expect(jobs.status.IsTerminal()).To(BeTrue())
	})
})
