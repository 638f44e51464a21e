package exports

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"blueprintcore/internal/blob"
	"blueprintcore/internal/core"
	"blueprintcore/pkg/domain"
)

type staticSource struct{ bp domain.Blueprint }

func (s staticSource) Blueprint() domain.Blueprint { return s.bp }

func waitForJob(t *testing.T, w *Worker, id string) Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := w.Job(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if job.Status == JobSucceeded || job.Status == JobFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestWorkerExportsServiceSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	if _, _, err := svc.CreateResource(ctx, core.ResourceInput{DisplayName: "Gold"}); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	audit := core.NewMemoryAuditLog(0)
	store := blob.NewMemory()
	worker := NewWorker(svc, NewExporter(store), audit)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.Enqueue(ctx, "designer")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != JobQueued || queued.Title != domain.DefaultGameTitle {
		t.Fatalf("unexpected queued job %+v", queued)
	}
	// edits after enqueue are not part of the export
	if _, _, err := svc.CreateResource(ctx, core.ResourceInput{DisplayName: "Wood"}); err != nil {
		t.Fatalf("create resource: %v", err)
	}

	job := waitForJob(t, worker, queued.ID)
	if job.Status != JobSucceeded || job.Artifact == nil || job.CompletedAt == nil {
		t.Fatalf("expected success, got %+v", job)
	}
	bp, err := NewExporter(store).Fetch(ctx, job.Artifact.Key)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bp.Resources) != 1 || bp.Resources[0].Key != "gold" {
		t.Fatalf("expected snapshot with gold only, got %+v", bp.Resources)
	}

	var exportEntries int
	var sawKey bool
	for _, entry := range audit.Entries() {
		if entry.Operation != "export_blueprint" {
			continue
		}
		exportEntries++
		if entry.Metadata["key"] == job.Artifact.Key {
			sawKey = true
		}
	}
	if exportEntries != 2 || !sawKey {
		t.Fatalf("expected queued and completed export audit entries, got %d (key seen %v)", exportEntries, sawKey)
	}
}

type failingStore struct{ blob.Store }

func (failingStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("disk full")
}

func TestWorkerRecordsFailure(t *testing.T) {
	worker := NewWorker(staticSource{bp: sampleBlueprint()}, NewExporter(failingStore{blob.NewMemory()}), nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.Enqueue(context.Background(), "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job := waitForJob(t, worker, queued.ID)
	if job.Status != JobFailed || job.Artifact != nil {
		t.Fatalf("expected failed job, got %+v", job)
	}
}

func TestWorkerQueueFull(t *testing.T) {
	worker := NewWorker(staticSource{bp: sampleBlueprint()}, NewExporter(blob.NewMemory()), nil)
	for i := 0; i < DefaultQueueSize; i++ {
		if _, err := worker.Enqueue(context.Background(), ""); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if _, err := worker.Enqueue(context.Background(), ""); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, ok := worker.Job("missing"); ok {
		t.Fatalf("unexpected job")
	}
}

func TestWorkerForgetsOldestFinishedJobs(t *testing.T) {
	worker := NewWorker(staticSource{bp: sampleBlueprint()}, NewExporter(blob.NewMemory()), nil, WithJobRetention(2))
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	var ids []string
	for i := 0; i < 3; i++ {
		queued, err := worker.Enqueue(context.Background(), "")
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		waitForJob(t, worker, queued.ID)
		ids = append(ids, queued.ID)
	}

	if _, ok := worker.Job(ids[0]); ok {
		t.Fatalf("oldest finished job should have been evicted")
	}
	for _, id := range ids[1:] {
		if job, ok := worker.Job(id); !ok || job.Status != JobSucceeded {
			t.Fatalf("expected job %s to be retained, got %+v (found %v)", id, job, ok)
		}
	}
}
