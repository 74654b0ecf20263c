package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/handler"
)

// Queue is the slice of the queue API the pool drives.
type Queue interface {
	ClaimJobs(ctx context.Context, limit int) ([]*entity.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, errMsg string) error
}

// Pool claims batches of due jobs and dispatches them to the registry on a
// fixed set of worker goroutines. All cross-process coordination lives in
// the storage claim; the pool itself holds no shared state beyond the
// channel feeding its workers.
type Pool struct {
	queue        Queue
	registry     *handler.Registry
	workers      int
	batchSize    int
	pollInterval time.Duration
	wake         <-chan struct{} // optional enqueue wake-ups
	log          *zap.Logger
}

func NewPool(queue Queue, registry *handler.Registry, workers, batchSize int, pollInterval time.Duration, wake <-chan struct{}, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = workers * 2
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Pool{
		queue:        queue,
		registry:     registry,
		workers:      workers,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		wake:         wake,
		log:          log,
	}
}

// Run blocks until ctx is cancelled. In-flight jobs finish before it
// returns.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info("worker pool started",
		zap.Int("workers", p.workers),
		zap.Int("batch_size", p.batchSize),
		zap.Duration("poll_interval", p.pollInterval),
	)

	jobCh := make(chan *entity.Job)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for job := range jobCh {
				p.process(ctx, n, job)
			}
		}(i + 1)
	}

	for {
		jobs, err := p.queue.ClaimJobs(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.log.Error("claim jobs", zap.Error(err))
			if !p.sleep(ctx) {
				break
			}
			continue
		}

		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}

		// A full batch means more work is probably waiting; claim again
		// immediately. Otherwise wait for the poll interval or a wake-up.
		if len(jobs) == p.batchSize {
			continue
		}
		if !p.sleep(ctx) {
			break
		}
	}

	close(jobCh)
	wg.Wait()
	p.log.Info("worker pool stopped")
}

// sleep waits for the poll interval, an enqueue wake-up, or shutdown.
// Returns false when the pool should exit.
func (p *Pool) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-p.wake:
		return true
	}
}

func (p *Pool) process(ctx context.Context, workerNum int, job *entity.Job) {
	start := time.Now()
	log := p.log.With(
		zap.Int("worker", workerNum),
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("correlation_id", job.CorrelationID),
	)

	h, ok := p.registry.Get(job.Type)
	if !ok {
		// Flows through the normal retry path and lands in the dead-letter
		// list where an operator can see it.
		log.Error("no handler registered for job type")
		p.finish(ctx, log, job, fmt.Errorf("no handler registered for job type %q", job.Type))
		return
	}

	err := h.Handle(ctx, job)
	p.finish(ctx, log, job, err)

	log.Info("job processed",
		zap.Bool("success", err == nil),
		zap.Duration("duration", time.Since(start)),
	)
}

func (p *Pool) finish(ctx context.Context, log *zap.Logger, job *entity.Job, handleErr error) {
	if handleErr == nil {
		if err := p.queue.CompleteJob(ctx, job.ID); err != nil {
			// The job stays processing and will be re-run; handlers are
			// idempotent for exactly this case.
			log.Error("complete job", zap.Error(err))
		}
		return
	}
	if err := p.queue.FailJob(ctx, job.ID, handleErr.Error()); err != nil {
		log.Error("fail job", zap.Error(err))
	}
}
