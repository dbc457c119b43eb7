package pipeline

import (
	"context"
	"sync"
	"time"

	"helvetia/internal/jobqueue"
	"helvetia/internal/media"
	"helvetia/internal/pkg/errors"
	"helvetia/internal/tempfiles"
)

// Ticket tracks one submitted job. It is handed out by Submit and
// stays valid until the reaper forgets it, one claim TTL after the job
// reaches a terminal state.
type Ticket struct {
	JobID string
	Kind  media.Kind

	job *jobqueue.Job
	in  *tempfiles.Handle
	out *tempfiles.Handle

	mu         sync.Mutex
	claimed    bool
	finishedAt time.Time
}

// Status returns the job's current lifecycle state.
func (t *Ticket) Status() jobqueue.Status {
	return t.job.Status()
}

// Err returns the terminal error, if any.
func (t *Ticket) Err() error {
	return t.job.Err()
}

// SubmittedAt returns when the job entered the queue.
func (t *Ticket) SubmittedAt() time.Time {
	return t.job.SubmittedAt
}

// StartedAt returns when the worker picked the job up. Zero while
// still queued.
func (t *Ticket) StartedAt() time.Time {
	return t.job.StartedAt()
}

// FinishedAt returns when the job reached a terminal state.
func (t *Ticket) FinishedAt() time.Time {
	return t.job.FinishedAt()
}

// Done returns a channel closed when the job is terminal.
func (t *Ticket) Done() <-chan struct{} {
	return t.job.Done()
}

// Cancel stops the job: dropped from the queue if still waiting,
// interrupted if already running.
func (t *Ticket) Cancel() {
	t.job.Cancel()
}

// Wait blocks until the job finishes and claims the artifact. A ctx
// expiry returns ctx.Err() without cancelling the job; callers that
// want to give up for good should Cancel explicitly.
func (t *Ticket) Wait(ctx context.Context) (*Artifact, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.job.Done():
	}
	if err := t.job.Err(); err != nil {
		return nil, err
	}
	return t.Claim()
}

// Claim transfers ownership of the output file to the caller. Exactly
// one claim succeeds; later calls, non-succeeded jobs and already
// reaped artifacts are rejected.
func (t *Ticket) Claim() (*Artifact, error) {
	if t.job.Status() != jobqueue.StatusSucceeded {
		return nil, errors.Conflict("job has no artifact to claim")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claimed {
		return nil, errors.Conflict("artifact already claimed")
	}
	if t.out.Released() {
		return nil, errors.NotFound("artifact")
	}
	t.claimed = true
	return &Artifact{Path: t.out.Path(), out: t.out}, nil
}
