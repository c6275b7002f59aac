package replay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when a task cannot be queued within the
// submit timeout. Surfaced to the operator, never silently dropped.
var ErrQueueFull = errors.New("replay queue full")

// Task is one unit of replay work executed by a pool worker.
type Task func(ctx context.Context)

// Pool manages a fixed number of worker goroutines draining a bounded
// task queue. Submission blocks up to a short timeout, then fails fast —
// the queue never grows unbounded.
type Pool struct {
	numWorkers    int
	tasks         chan Task
	submitTimeout time.Duration
	logger        *slog.Logger
	wg            sync.WaitGroup
}

// NewPool creates a worker pool with the given concurrency and queue
// capacity.
func NewPool(numWorkers, queueCapacity int, submitTimeout time.Duration, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers:    numWorkers,
		tasks:         make(chan Task, queueCapacity),
		submitTimeout: submitTimeout,
		logger:        logger,
	}
}

// Start launches all worker goroutines. Workers drain the task channel
// until it is closed; a task already dispatched always runs to
// completion, even during shutdown, so no replay is left half-applied.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("replay worker pool started",
		"num_workers", p.numWorkers, "queue_capacity", cap(p.tasks))
}

// Submit queues a task. It blocks until the task is accepted, the submit
// timeout elapses (ErrQueueFull), or the caller's context is cancelled.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	timer := time.NewTimer(p.submitTimeout)
	defer timer.Stop()

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrQueueFull
	}
}

// Stop closes the task queue and waits for all workers to finish.
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info("replay worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for task := range p.tasks {
		task(ctx)
	}
}
