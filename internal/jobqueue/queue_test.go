package jobqueue

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"helvetia/internal/media"
	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	var buf bytes.Buffer
	return logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSubmitRunsJobsInOrder(t *testing.T) {
	q := New(5, newTestLogger())

	var mu sync.Mutex
	var order []string

	jobs := make([]*Job, 0, 3)
	for _, id := range []string{"a", "b", "c"} {
		id := id
		job := NewJob(id, media.KindImage, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		})
		if err := q.Submit(job); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
		jobs = append(jobs, job)
	}

	q.Start(context.Background())
	defer q.Stop(context.Background())

	for _, job := range jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := job.Wait(ctx); err != nil {
			t.Fatalf("job %s: unexpected error: %v", job.ID, err)
		}
		cancel()
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected FIFO order %v, got %v", want, order)
		}
	}
}

func TestOnlyOneJobRunsAtATime(t *testing.T) {
	q := New(8, newTestLogger())

	var running atomic.Int32
	var violated atomic.Bool

	jobs := make([]*Job, 0, 8)
	for i := 0; i < 8; i++ {
		job := NewJob("j", media.KindVideo, func(ctx context.Context) error {
			if running.Add(1) != 1 {
				violated.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
		if err := q.Submit(job); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
		jobs = append(jobs, job)
	}

	q.Start(context.Background())
	defer q.Stop(context.Background())

	for _, job := range jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := job.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cancel()
	}

	if violated.Load() {
		t.Error("expected at most one running job at any time")
	}
}

func TestFullQueueRejectsImmediately(t *testing.T) {
	q := New(3, newTestLogger())

	var accepted []*Job
	var rejected int

	for i := 0; i < 5; i++ {
		job := NewJob("j", media.KindImage, func(ctx context.Context) error { return nil })
		err := q.Submit(job)
		switch {
		case err == nil:
			accepted = append(accepted, job)
		case errors.IsCode(err, errors.CodeBackpressure):
			rejected++
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}

	if len(accepted) != 3 {
		t.Errorf("expected exactly 3 accepted, got %d", len(accepted))
	}
	if rejected != 2 {
		t.Errorf("expected exactly 2 backpressure rejections, got %d", rejected)
	}

	// The accepted jobs still run to completion once the worker starts.
	q.Start(context.Background())
	defer q.Stop(context.Background())

	for _, job := range accepted {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := job.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cancel()
		if job.Status() != StatusSucceeded {
			t.Errorf("expected SUCCEEDED, got %s", job.Status())
		}
	}
}

func TestCancelWhileQueuedNeverRuns(t *testing.T) {
	q := New(3, newTestLogger())
	q.Start(context.Background())
	defer q.Stop(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := NewJob("blocker", media.KindVideo, func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return errors.Cancelled("transcode")
		}
	})
	if err := q.Submit(blocker); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	<-started

	var ran atomic.Bool
	queued := NewJob("queued", media.KindImage, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err := q.Submit(queued); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	queued.Cancel()

	if queued.Status() != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", queued.Status())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := queued.Wait(ctx); !errors.IsCode(err, errors.CodeCancelled) {
		t.Errorf("expected cancelled result, got %v", err)
	}

	close(release)
	waitFor(t, 2*time.Second, func() bool { return q.InFlight() == 0 })

	if ran.Load() {
		t.Error("expected a job cancelled in line to never run")
	}
}

func TestCancelWhileRunning(t *testing.T) {
	q := New(3, newTestLogger())
	q.Start(context.Background())
	defer q.Stop(context.Background())

	started := make(chan struct{})
	job := NewJob("running", media.KindVideo, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return errors.Cancelled("transcode")
	})
	if err := q.Submit(job); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	<-started

	job.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := job.Wait(ctx); !errors.IsCode(err, errors.CodeCancelled) {
		t.Fatalf("expected cancelled result, got %v", err)
	}
	if job.Status() != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", job.Status())
	}
}

func TestStopRejectsNewSubmissions(t *testing.T) {
	q := New(3, newTestLogger())
	q.Start(context.Background())

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	job := NewJob("late", media.KindImage, func(ctx context.Context) error { return nil })
	if err := q.Submit(job); !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("expected UNAVAILABLE after stop, got %v", err)
	}
}

func TestStopWaitsForRunningAndCancelsQueued(t *testing.T) {
	q := New(3, newTestLogger())
	q.Start(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	running := NewJob("running", media.KindVideo, func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return errors.Cancelled("transcode")
		}
	})
	if err := q.Submit(running); err != nil {
		t.Fatal(err)
	}
	<-started

	queued := NewJob("queued", media.KindImage, func(ctx context.Context) error { return nil })
	if err := q.Submit(queued); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if running.Status() != StatusSucceeded {
		t.Errorf("expected running job to finish, got %s", running.Status())
	}
	if queued.Status() != StatusCancelled {
		t.Errorf("expected queued job cancelled on shutdown, got %s", queued.Status())
	}
}

func TestStopForceCancelsAfterGrace(t *testing.T) {
	q := New(3, newTestLogger())
	q.Start(context.Background())

	started := make(chan struct{})
	job := NewJob("stuck", media.KindVideo, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return errors.Cancelled("transcode")
	})
	if err := q.Submit(job); err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := q.Stop(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline error from stop, got %v", err)
	}
	if job.Status() != StatusCancelled {
		t.Errorf("expected stuck job cancelled, got %s", job.Status())
	}
}

func TestCapacityFreedAfterCompletion(t *testing.T) {
	q := New(1, newTestLogger())
	q.Start(context.Background())
	defer q.Stop(context.Background())

	first := NewJob("first", media.KindImage, func(ctx context.Context) error { return nil })
	if err := q.Submit(first); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := first.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return q.InFlight() == 0 })

	second := NewJob("second", media.KindImage, func(ctx context.Context) error { return nil })
	if err := q.Submit(second); err != nil {
		t.Errorf("expected capacity to be freed, got %v", err)
	}
}
