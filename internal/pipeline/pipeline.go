// Package pipeline ties staging, parameter generation, the encode
// queue and temp file cleanup into one facade. Callers hand it a media
// source and get back either a finished artifact (synchronous Process)
// or a Ticket they can poll, cancel and claim later (Submit).
package pipeline

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"helvetia/internal/jobqueue"
	"helvetia/internal/media"
	"helvetia/internal/metrics"
	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/logger"
	"helvetia/internal/tempfiles"
	"helvetia/internal/transform"
)

// Invoker runs one encode. Implemented by transcode.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, params transform.Parameters, inputPath, outputPath string) error
}

// Source is one piece of media to uniqueize. Reader wins when both are
// set; Path lets callers hand over a file already on disk. Name is the
// client-side filename and only matters for extension inference.
type Source struct {
	Reader io.Reader
	Path   string
	Name   string
}

// Artifact is a finished output file. The caller owns it and must call
// Release when done; Release is idempotent.
type Artifact struct {
	Path string

	out *tempfiles.Handle
}

// Release removes the artifact from disk.
func (a *Artifact) Release() {
	a.out.Release()
}

// Deps carries everything the pipeline needs.
type Deps struct {
	Gen      *transform.Generator
	Invoker  Invoker
	Temp     *tempfiles.Manager
	Queue    *jobqueue.Queue
	Log      *logger.Logger
	ClaimTTL time.Duration
}

// Pipeline is the uniqueization facade. Safe for concurrent use.
type Pipeline struct {
	gen      *transform.Generator
	inv      Invoker
	temp     *tempfiles.Manager
	queue    *jobqueue.Queue
	log      *logger.Logger
	claimTTL time.Duration

	mu      sync.Mutex
	tickets map[string]*Ticket
}

const defaultClaimTTL = 10 * time.Minute

func New(d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	ttl := d.ClaimTTL
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &Pipeline{
		gen:      d.Gen,
		inv:      d.Invoker,
		temp:     d.Temp,
		queue:    d.Queue,
		log:      log.WithComponent("pipeline"),
		claimTTL: ttl,
		tickets:  make(map[string]*Ticket),
	}
}

// Start launches the background reaper that releases finished but
// never-claimed artifacts. It exits when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	go p.reapLoop(ctx)
}

// Submit stages the source, draws fresh transform parameters and
// enqueues the encode. It returns a Ticket immediately; the work runs
// on the queue worker. A full queue fails fast with Backpressure and
// leaves no files behind.
func (p *Pipeline) Submit(ctx context.Context, src Source, kind media.Kind) (*Ticket, error) {
	jobID := uuid.NewString()
	log := p.log.FromContext(ctx).WithJobID(jobID)

	// 1. Materializar la entrada en el disco
	in, err := p.stage(jobID, src)
	if err != nil {
		return nil, err
	}
	log.Debug("input staged", "path", in.Path())

	// 2. Parámetros frescos para esta copia
	params, err := p.gen.Generate(kind)
	if err != nil {
		in.Release()
		return nil, err
	}

	// 3. Reservar la ruta de salida
	out, err := p.temp.AllocateOutput(jobID, media.OutputExt(kind, src.Name))
	if err != nil {
		in.Release()
		return nil, err
	}

	// 4. Encolar el trabajo
	job := jobqueue.NewJob(jobID, kind, func(runCtx context.Context) error {
		return p.inv.Invoke(runCtx, params, in.Path(), out.Path())
	})
	if err := p.queue.Submit(job); err != nil {
		if errors.IsCode(err, errors.CodeBackpressure) {
			metrics.JobsRejected.Inc()
		}
		in.Release()
		out.Release()
		return nil, err
	}
	metrics.JobsSubmitted.WithLabelValues(string(kind)).Inc()

	t := &Ticket{
		JobID: jobID,
		Kind:  kind,
		job:   job,
		in:    in,
		out:   out,
	}
	p.mu.Lock()
	p.tickets[jobID] = t
	p.mu.Unlock()

	go p.finalize(t)

	log.Info("job submitted", "kind", string(kind), "in_flight", p.queue.InFlight())
	return t, nil
}

// Process is the synchronous form of Submit: it waits for the job and
// hands back the artifact. Cancelling ctx cancels the job. On any
// failure both temp files are gone by the time this returns.
func (p *Pipeline) Process(ctx context.Context, src Source, kind media.Kind) (*Artifact, error) {
	t, err := p.Submit(ctx, src, kind)
	if err != nil {
		return nil, err
	}

	select {
	case <-t.job.Done():
	case <-ctx.Done():
		t.Cancel()
		<-t.job.Done()
	}

	if err := t.Err(); err != nil {
		return nil, err
	}
	return t.Claim()
}

// Ticket returns the ticket for a job, if it is still tracked.
func (p *Pipeline) Ticket(jobID string) (*Ticket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tickets[jobID]
	return t, ok
}

func (p *Pipeline) stage(jobID string, src Source) (*tempfiles.Handle, error) {
	switch {
	case src.Reader != nil:
		return p.temp.Stage(jobID, src.Reader, src.Name)
	case src.Path != "":
		return p.temp.StageFile(jobID, src.Path)
	default:
		return nil, errors.ValidationField("source", "a reader or a path is required")
	}
}

// finalize watches one job to its terminal state and applies the
// cleanup contract: failures release both files, success releases the
// input and leaves the output for whoever claims it.
func (p *Pipeline) finalize(t *Ticket) {
	<-t.job.Done()

	t.mu.Lock()
	t.finishedAt = time.Now()
	t.mu.Unlock()

	metrics.JobsFinished.WithLabelValues(string(t.Kind), strings.ToLower(string(t.job.Status()))).Inc()
	if started := t.job.StartedAt(); !started.IsZero() {
		metrics.JobDuration.WithLabelValues(string(t.Kind)).Observe(t.job.FinishedAt().Sub(started).Seconds())
	}

	if err := t.job.Err(); err != nil {
		t.in.Release()
		t.out.Release()
		return
	}
	t.in.Release()
}

func (p *Pipeline) reapLoop(ctx context.Context) {
	interval := p.claimTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.reap(time.Now()); n > 0 {
				p.log.Info("reaped unclaimed artifacts", "count", n)
			}
		}
	}
}

// reap drops terminal tickets whose claim window has passed, releasing
// any artifact nobody picked up. Returns how many artifacts it
// released.
func (p *Pipeline) reap(now time.Time) int {
	p.mu.Lock()
	candidates := make([]*Ticket, 0, len(p.tickets))
	for _, t := range p.tickets {
		candidates = append(candidates, t)
	}
	p.mu.Unlock()

	released := 0
	for _, t := range candidates {
		t.mu.Lock()
		expired := !t.finishedAt.IsZero() && now.Sub(t.finishedAt) >= p.claimTTL
		var orphan *tempfiles.Handle
		if expired && !t.claimed && !t.out.Released() {
			orphan = t.out
		}
		t.mu.Unlock()

		if !expired {
			continue
		}
		if orphan != nil {
			orphan.Release()
			released++
			metrics.ArtifactsReaped.Inc()
			p.log.Debug("released unclaimed artifact", "job_id", t.JobID)
		}
		p.mu.Lock()
		delete(p.tickets, t.JobID)
		p.mu.Unlock()
	}
	return released
}
