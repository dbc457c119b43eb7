// Package jobqueue serializes transcode work through a single worker.
// Intake is bounded: a full queue rejects immediately instead of
// blocking, so callers can surface backpressure to their own callers.
package jobqueue

import (
	"context"
	"sync"
	"time"

	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/logger"
)

// Queue is a bounded FIFO feeding one worker goroutine. At most one
// job is RUNNING at any time; capacity counts queued plus running.
type Queue struct {
	capacity int
	log      *logger.Logger

	mu        sync.Mutex
	accepting bool
	inflight  int
	running   *Job

	jobs     chan *Job
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates a queue with the given capacity.
func New(capacity int, log *logger.Logger) *Queue {
	if capacity <= 0 {
		capacity = 3
	}
	return &Queue{
		capacity:  capacity,
		log:       log.WithComponent("queue"),
		accepting: true,
		jobs:      make(chan *Job, capacity),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

// Submit accepts a job or rejects it on the spot. A full queue answers
// with a backpressure error immediately, it never blocks the caller.
func (q *Queue) Submit(job *Job) error {
	q.mu.Lock()
	if !q.accepting {
		q.mu.Unlock()
		return errors.Unavailable("queue").WithOp("queue.Submit")
	}
	if q.inflight >= q.capacity {
		q.mu.Unlock()
		return errors.Backpressure().WithOp("queue.Submit")
	}
	q.inflight++
	// The channel holds capacity slots and inflight already counts the
	// running job, so this send cannot block. Sending under the lock
	// means no job can slip in behind a shutdown drain.
	q.jobs <- job
	q.mu.Unlock()

	q.log.Debug("job queued", "job_id", job.ID, "kind", string(job.Kind))
	return nil
}

// InFlight returns the number of queued plus running jobs.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inflight
}

// Depth returns the number of jobs waiting in line.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Capacity returns the configured bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Stop rejects new submissions, lets the running job finish within the
// context's grace and delivers a cancelled result to jobs still in
// line. After the grace expires the running job is cancelled too.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.accepting = false
	q.mu.Unlock()

	q.stopOnce.Do(func() { close(q.stopCh) })

	select {
	case <-q.doneCh:
		return nil
	case <-ctx.Done():
		q.cancelRunning()
		<-q.doneCh
		return ctx.Err()
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.doneCh)
	q.log.Info("worker started", "capacity", q.capacity)

	for {
		// Revisa primero si hay que parar, antes de tomar otro job.
		select {
		case <-q.stopCh:
			q.drain()
			return
		case <-ctx.Done():
			q.drain()
			return
		default:
		}

		select {
		case <-q.stopCh:
			q.drain()
			return
		case <-ctx.Done():
			q.drain()
			return
		case job := <-q.jobs:
			q.runJob(ctx, job)
		}
	}
}

func (q *Queue) runJob(parent context.Context, job *Job) {
	defer q.release()

	runCtx, cancel := context.WithCancel(parent)
	defer cancel()

	if !job.start(cancel) {
		// Cancelled while in line, nothing to run.
		return
	}

	q.mu.Lock()
	q.running = job
	q.mu.Unlock()

	jobCtx := logger.ContextWithJobID(runCtx, job.ID)
	jobLog := q.log.WithJobID(job.ID)

	jobLog.Info("processing job", "kind", string(job.Kind))
	startTime := time.Now()

	err := job.Run(jobCtx)
	job.finish(err)

	q.mu.Lock()
	q.running = nil
	q.mu.Unlock()

	if err != nil {
		jobLog.Error("job failed",
			"status", string(job.Status()),
			"error", err.Error(),
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	} else {
		jobLog.Info("job completed",
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	}
}

// drain cancels every job still waiting in line.
func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.Cancel()
			q.release()
			q.log.Info("queued job cancelled on shutdown", "job_id", job.ID)
		default:
			q.log.Info("worker stopped")
			return
		}
	}
}

func (q *Queue) cancelRunning() {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	if running != nil {
		running.Cancel()
	}
}

func (q *Queue) release() {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
}
