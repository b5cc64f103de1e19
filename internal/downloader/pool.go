package downloader

import (
	"context"
	"fmt"
	"sync"

	"mediagrab/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Acquirer runs one task to completion
type Acquirer interface {
	AcquireFirst(ctx context.Context, urls []string, t Task) Result
}

// Job is a task plus its ordered fallback sources. Sources may be empty, in
// which case Task.URL is the only source.
type Job struct {
	Task    Task
	Sources []string
}

func (j Job) urls() []string {
	if len(j.Sources) > 0 {
		return j.Sources
	}
	return []string{j.Task.URL}
}

// WorkerPool runs jobs through an Acquirer with bounded concurrency
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	group       *errgroup.Group
	ctx         context.Context
	cancel      context.CancelFunc
	engine      Acquirer
	logger      logger.Logger
	stopOnce    sync.Once
}

// NewWorkerPool creates a pool bound to ctx. Cancelling ctx stops workers
// after their current job.
func NewWorkerPool(ctx context.Context, numWorkers int, engine Acquirer, log logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.GetLogger()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		group:       g,
		ctx:         gctx,
		cancel:      cancel,
		engine:      engine,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting worker pool", logger.Fields{
		"num_workers": wp.numWorkers,
	})
	for i := 0; i < wp.numWorkers; i++ {
		id := i
		wp.group.Go(func() error {
			wp.worker(id)
			return nil
		})
	}
}

// Stop closes the queue, waits for in-flight jobs and closes Results. It
// is safe to call more than once.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobQueue)
		wp.group.Wait()
		close(wp.resultQueue)
		wp.cancel()
		wp.logger.Debug("worker pool stopped")
	})
}

// Submit queues a job. It blocks while the queue is full.
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results streams one result per processed job
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			// drain so Submit never blocks on a dead pool
			continue
		}
		wp.logger.DebugWithFields("worker processing job", logger.Fields{
			"worker_id": id,
			"dest":      job.Task.Dest,
		})
		res := wp.engine.AcquireFirst(wp.ctx, job.urls(), job.Task)
		select {
		case wp.resultQueue <- res:
		case <-wp.ctx.Done():
		}
	}
}
