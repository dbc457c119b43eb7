package jobqueue

import (
	"context"
	"sync"
	"time"

	"helvetia/internal/media"
	"helvetia/internal/pkg/errors"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one unit of transcode work. The queue runs Run at most once;
// a job cancelled while still in line is never started.
type Job struct {
	ID          string
	Kind        media.Kind
	SubmittedAt time.Time

	// Run does the actual work. It must honor context cancellation.
	Run func(ctx context.Context) error

	mu         sync.Mutex
	status     Status
	err        error
	startedAt  time.Time
	finishedAt time.Time
	cancelRun  context.CancelFunc
	done       chan struct{}
}

// NewJob creates a queued job around a work function.
func NewJob(id string, kind media.Kind, run func(ctx context.Context) error) *Job {
	return &Job{
		ID:          id,
		Kind:        kind,
		SubmittedAt: time.Now(),
		Run:         run,
		status:      StatusQueued,
		done:        make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err returns the terminal error, nil while pending or on success.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// StartedAt returns when the job began running, zero if it never did.
func (j *Job) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// FinishedAt returns when the job reached a terminal state.
func (j *Job) FinishedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or the context fires.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
		return j.Err()
	}
}

// Cancel requests cancellation. A queued job becomes CANCELLED on the
// spot without ever invoking the tool; a running job gets its context
// cancelled and finishes through the worker.
func (j *Job) Cancel() {
	j.mu.Lock()
	switch j.status {
	case StatusQueued:
		j.status = StatusCancelled
		j.err = errors.Cancelled("job")
		j.finishedAt = time.Now()
		close(j.done)
		j.mu.Unlock()
	case StatusRunning:
		cancel := j.cancelRun
		j.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	default:
		j.mu.Unlock()
	}
}

// start moves QUEUED to RUNNING. It returns false when the job was
// cancelled while waiting, in which case the worker skips it.
func (j *Job) start(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusQueued {
		return false
	}
	j.status = StatusRunning
	j.startedAt = time.Now()
	j.cancelRun = cancel
	return true
}

// finish records the terminal state and releases waiters.
func (j *Job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return
	}
	j.finishedAt = time.Now()
	j.cancelRun = nil
	switch {
	case err == nil:
		j.status = StatusSucceeded
	case errors.IsCode(err, errors.CodeCancelled) || errors.Is(err, context.Canceled):
		j.status = StatusCancelled
		j.err = err
	default:
		j.status = StatusFailed
		j.err = err
	}
	close(j.done)
}
