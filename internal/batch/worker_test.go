package batch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/briefcast/briefcast/internal/article"
)

func TestWorkerProcessesSubmittedJob(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	ids := seedCatalog(catalog, 25)
	queue := NewInMemoryQueue(4)
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), queue)

	w := NewWorker(WorkerConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, queue, o)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	jobID, err := o.Submit(ctx, ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		job, err := o.Status(ctx, jobID)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if job.Status == StatusCompleted {
			if job.Processed != 25 {
				t.Errorf("expected 25 processed, got %d", job.Processed)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed, last status %s (%d/%d)", job.Status, job.Processed, job.Total)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorkerStartStop(t *testing.T) {
	queue := NewInMemoryQueue(4)
	catalog := article.NewInMemoryCatalog()
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), queue)
	w := NewWorker(WorkerConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, queue, o)

	ctx := context.Background()
	if w.IsRunning() {
		t.Error("worker should not be running before Start")
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !w.IsRunning() {
		t.Error("worker should be running after Start")
	}
	// Second Start is a no-op.
	if err := w.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	w.Stop()
	if w.IsRunning() {
		t.Error("worker should not be running after Stop")
	}
	// Second Stop is a no-op.
	w.Stop()
}
