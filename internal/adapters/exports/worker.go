package exports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"blueprintcore/internal/core"
	"blueprintcore/pkg/domain"
)

// JobStatus describes the lifecycle stage of an export job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ErrQueueFull is returned when the worker cannot accept another job.
var ErrQueueFull = errors.New("export queue full")

// Job tracks one asynchronous export.
type Job struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	RequestedBy string     `json:"requested_by,omitempty"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifact    *Artifact  `json:"artifact,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (j *Job) copy() Job {
	out := *j
	if j.Artifact != nil {
		a := *j.Artifact
		out.Artifact = &a
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Source supplies the blueprint captured when a job is enqueued.
type Source interface {
	Blueprint() domain.Blueprint
}

// Scheduler queues export jobs and exposes their status.
type Scheduler interface {
	Enqueue(ctx context.Context, requestedBy string) (Job, error)
	Job(id string) (Job, bool)
}

// Worker runs exports in the background. The blueprint is snapshotted at
// enqueue time so later edits do not leak into a queued export.
type Worker struct {
	source   Source
	exporter *Exporter
	audit    core.AuditRecorder
	now      func() time.Time

	queue    chan task
	mu       sync.RWMutex
	jobs     map[string]*Job
	finished []string
	retain   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id        string
	blueprint domain.Blueprint
}

const (
	// DefaultQueueSize bounds the number of pending jobs.
	DefaultQueueSize = 32
	// DefaultJobRetention bounds how many finished jobs stay queryable.
	DefaultJobRetention = 256
)

// WorkerOption customises a Worker.
type WorkerOption func(*Worker)

// WithJobRetention keeps at most n finished jobs; the oldest are forgotten first.
// Values below one are ignored.
func WithJobRetention(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.retain = n
		}
	}
}

// NewWorker constructs a worker. A nil audit recorder disables auditing.
func NewWorker(source Source, exporter *Exporter, audit core.AuditRecorder, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source:   source,
		exporter: exporter,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
		queue:    make(chan task, DefaultQueueSize),
		jobs:     make(map[string]*Job),
		retain:   DefaultJobRetention,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the loop to exit.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue snapshots the current blueprint and schedules its export.
func (w *Worker) Enqueue(ctx context.Context, requestedBy string) (Job, error) {
	if w.source == nil || w.exporter == nil {
		return Job{}, fmt.Errorf("export worker not configured")
	}
	bp := w.source.Blueprint()
	now := w.now()
	job := &Job{
		ID:          uuid.NewString(),
		Title:       bp.Settings.GameTitle,
		RequestedBy: requestedBy,
		Status:      JobQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[job.ID] = job
	queued := job.copy()
	w.mu.Unlock()

	select {
	case w.queue <- task{id: job.ID, blueprint: bp}:
	default:
		w.mu.Lock()
		delete(w.jobs, job.ID)
		w.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	w.record(ctx, queued, "")
	return queued, nil
}

// Job returns a snapshot of the job.
func (w *Worker) Job(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

func (w *Worker) process(t task) {
	w.update(t.id, func(j *Job) { j.Status = JobRunning })
	artifact, err := w.exporter.Export(w.ctx, t.blueprint)
	if err != nil {
		w.finish(t.id, nil, err.Error())
		return
	}
	w.finish(t.id, &artifact, "")
}

func (w *Worker) finish(id string, artifact *Artifact, reason string) {
	now := w.now()
	w.mu.Lock()
	job, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	job.Artifact = artifact
	job.Error = reason
	job.CompletedAt = &now
	job.UpdatedAt = now
	if reason != "" {
		job.Status = JobFailed
	} else {
		job.Status = JobSucceeded
	}
	snap := job.copy()
	w.forgetOldLocked(id)
	w.mu.Unlock()

	w.record(w.ctx, snap, reason)
}

// forgetOldLocked marks id as finished and drops the oldest finished jobs
// beyond the retention limit. Queued and running jobs are never dropped.
func (w *Worker) forgetOldLocked(id string) {
	w.finished = append(w.finished, id)
	for len(w.finished) > w.retain {
		delete(w.jobs, w.finished[0])
		w.finished = w.finished[1:]
	}
}

func (w *Worker) update(id string, fn func(*Job)) (Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	fn(job)
	job.UpdatedAt = w.now()
	return job.copy(), true
}

func (w *Worker) record(ctx context.Context, job Job, reason string) {
	if w.audit == nil {
		return
	}
	status := core.AuditStatusSuccess
	if job.Status == JobFailed {
		status = core.AuditStatusError
	}
	md := map[string]any{"job_id": job.ID, "job_status": string(job.Status)}
	if job.RequestedBy != "" {
		md["requested_by"] = job.RequestedBy
	}
	if job.Artifact != nil {
		md["key"] = job.Artifact.Key
	}
	w.audit.Record(ctx, core.AuditEntry{
		ID:         uuid.NewString(),
		Operation:  "export_blueprint",
		Status:     status,
		Error:      reason,
		Metadata:   md,
		OccurredAt: w.now(),
	})
}
