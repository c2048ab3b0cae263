package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/persona"
	"github.com/briefcast/briefcast/internal/scoring"
)

func testPersona() persona.Persona {
	return persona.Persona{
		JobTitle: "Head of Engineering",
		Company:  "Acme Bank",
	}
}

// seedCatalog fills a catalog with n articles ids "article-0" through
// "article-<n-1>" and returns the ids.
func seedCatalog(catalog *article.InMemoryCatalog, n int) []string {
	now := time.Now().UTC()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("article-%d", i)
		published := now.Add(-time.Duration(i) * 24 * time.Hour)
		catalog.Add(article.Article{
			ID:          id,
			Title:       fmt.Sprintf("Banking platform update %d", i),
			Summary:     "Engineering teams modernize core banking systems",
			Industry:    article.IndustryBFSI,
			PublishedAt: &published,
		})
		ids = append(ids, id)
	}
	return ids
}

func testOrchestrator(catalog article.Catalog, store ProgressStore, queue Queue) *Orchestrator {
	engine := scoring.NewEngine(scoring.EngineConfig{})
	return NewOrchestrator(OrchestratorConfig{
		ChunkSize:    20,
		ChunkBackoff: time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, engine, catalog, store, queue)
}

func TestSubmitValidation(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), NewInMemoryQueue(4))

	if _, err := o.Submit(context.Background(), nil, testPersona()); !errors.Is(err, ErrNoArticleIDs) {
		t.Errorf("expected ErrNoArticleIDs, got %v", err)
	}
	if _, err := o.Submit(context.Background(), []string{"a"}, persona.Persona{}); !errors.Is(err, ErrEmptyPersona) {
		t.Errorf("expected ErrEmptyPersona, got %v", err)
	}
}

func TestSubmitCreatesRecordAndEnqueues(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	ids := seedCatalog(catalog, 3)
	queue := NewInMemoryQueue(4)
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), queue)

	jobID, err := o.Submit(context.Background(), ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	job, err := o.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != StatusProcessing {
		t.Errorf("expected status processing, got %s", job.Status)
	}
	if job.Total != 3 || job.Processed != 0 {
		t.Errorf("expected total=3 processed=0, got total=%d processed=%d", job.Total, job.Processed)
	}
	if len(job.Results) != 0 {
		t.Errorf("expected no results yet, got %d", len(job.Results))
	}

	task, err := queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.JobID != jobID {
		t.Errorf("queued task carries job id %s, want %s", task.JobID, jobID)
	}
	if len(task.ArticleIDs) != 3 {
		t.Errorf("queued task carries %d ids, want 3", len(task.ArticleIDs))
	}
}

func TestRunCompletesLargeJob(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	ids := seedCatalog(catalog, 247)
	// Submit a few ids the catalog does not hold.
	ids = append(ids, "missing-1", "missing-2", "missing-3")
	queue := NewInMemoryQueue(4)
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), queue)

	jobID, err := o.Submit(context.Background(), ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	task, err := queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	o.Run(context.Background(), *task)

	job, err := o.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected status completed, got %s (error %q)", job.Status, job.Error)
	}
	if job.Total != 250 {
		t.Errorf("total changed after submit: got %d, want 250", job.Total)
	}
	if job.Processed != 247 {
		t.Errorf("expected 247 processed, got %d", job.Processed)
	}
	if len(job.Results) != job.Processed {
		t.Errorf("results/processed mismatch: %d results, %d processed", len(job.Results), job.Processed)
	}
	if job.Skipped != 3 {
		t.Errorf("expected 3 skipped ids, got %d", job.Skipped)
	}
	if got := job.ProgressPercentage(); got != 99 {
		t.Errorf("expected progress 99, got %d", got)
	}

	seen := make(map[string]bool)
	for _, r := range job.Results {
		if seen[r.ArticleID] {
			t.Errorf("article %s scored twice", r.ArticleID)
		}
		seen[r.ArticleID] = true
		if r.RelevanceScore < 0 || r.RelevanceScore > 1 {
			t.Errorf("score for %s out of range: %f", r.ArticleID, r.RelevanceScore)
		}
	}
}

// invariantStore wraps a ProgressStore and fails the test if any write
// pairs a processed count with a results list of different length, or
// moves processed backwards, or changes total.
type invariantStore struct {
	inner ProgressStore
	t     *testing.T

	mu            sync.Mutex
	lastProcessed int
	total         int
	totalSet      bool
}

func (s *invariantStore) SetFields(ctx context.Context, jobID string, fields map[string]any) error {
	s.mu.Lock()
	processed, hasProcessed := fields[fieldProcessed].(int)
	rawResults, hasResults := fields[fieldResults].(string)
	if hasProcessed != hasResults {
		s.t.Errorf("write carries processed without results (or vice versa): %v", fields)
	}
	if hasProcessed {
		var results []Result
		if err := json.Unmarshal([]byte(rawResults), &results); err != nil {
			s.t.Errorf("unparseable results in write: %v", err)
		} else if len(results) != processed {
			s.t.Errorf("write has processed=%d but %d results", processed, len(results))
		}
		if processed < s.lastProcessed {
			s.t.Errorf("processed moved backwards: %d -> %d", s.lastProcessed, processed)
		}
		s.lastProcessed = processed
	}
	if total, ok := fields[fieldTotal].(int); ok {
		if s.totalSet && total != s.total {
			s.t.Errorf("total changed mid-job: %d -> %d", s.total, total)
		}
		s.total = total
		s.totalSet = true
	}
	s.mu.Unlock()
	return s.inner.SetFields(ctx, jobID, fields)
}

func (s *invariantStore) Get(ctx context.Context, jobID string) (map[string]string, error) {
	return s.inner.Get(ctx, jobID)
}

func (s *invariantStore) Expire(ctx context.Context, jobID string, ttl time.Duration) error {
	return s.inner.Expire(ctx, jobID, ttl)
}

func TestRunProgressWritesKeepInvariants(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	ids := seedCatalog(catalog, 95)
	queue := NewInMemoryQueue(4)
	store := &invariantStore{inner: NewInMemoryProgressStore(), t: t}
	o := testOrchestrator(catalog, store, queue)

	jobID, err := o.Submit(context.Background(), ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	task, _ := queue.Dequeue(context.Background())
	o.Run(context.Background(), *task)

	job, err := o.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != StatusCompleted || job.Processed != 95 {
		t.Errorf("expected completed with 95 processed, got %s/%d", job.Status, job.Processed)
	}
}

func TestRunRedeliveryDoesNotDoubleCount(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	ids := seedCatalog(catalog, 30)
	queue := NewInMemoryQueue(4)
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), queue)

	jobID, err := o.Submit(context.Background(), ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	task, _ := queue.Dequeue(context.Background())

	// First delivery completes the job; the second must be a no-op.
	o.Run(context.Background(), *task)
	o.Run(context.Background(), *task)

	job, err := o.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Processed != 30 || len(job.Results) != 30 {
		t.Errorf("re-delivery double-counted: processed=%d results=%d", job.Processed, len(job.Results))
	}
}

func TestSubmitDeduplicatesArticleIDs(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	seedCatalog(catalog, 1)
	queue := NewInMemoryQueue(4)
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), queue)

	// Two full chunks of the same id: within-chunk and cross-chunk
	// duplicates at once.
	ids := make([]string, 40)
	for i := range ids {
		ids[i] = "article-0"
	}

	jobID, err := o.Submit(context.Background(), ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	task, _ := queue.Dequeue(context.Background())
	if len(task.ArticleIDs) != 1 {
		t.Errorf("queued task carries %d ids, want 1", len(task.ArticleIDs))
	}

	o.Run(context.Background(), *task)

	job, err := o.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s", job.Status)
	}
	if job.Total != 1 || job.Processed != 1 || len(job.Results) != 1 {
		t.Errorf("duplicate ids inflated the job: total=%d processed=%d results=%d",
			job.Total, job.Processed, len(job.Results))
	}
	if pct := job.ProgressPercentage(); pct != 100 {
		t.Errorf("completed job reports %d%% progress, want 100", pct)
	}
}

func TestRunDeduplicatesInjectedTask(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	ids := seedCatalog(catalog, 5)
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), NewInMemoryQueue(4))

	// A task that bypassed Submit may still carry duplicates.
	task := Task{
		JobID:      "injected-job",
		ArticleIDs: append(append([]string{}, ids...), ids...),
		Persona:    testPersona(),
	}
	o.Run(context.Background(), task)

	job, err := o.Status(context.Background(), "injected-job")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Total != 5 || job.Processed != 5 || len(job.Results) != 5 {
		t.Errorf("duplicate ids inflated the job: total=%d processed=%d results=%d",
			job.Total, job.Processed, len(job.Results))
	}
}

func TestRunResumesPartialJob(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	ids := seedCatalog(catalog, 40)
	store := NewInMemoryProgressStore()
	queue := NewInMemoryQueue(4)
	o := testOrchestrator(catalog, store, queue)

	jobID, err := o.Submit(context.Background(), ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	task, _ := queue.Dequeue(context.Background())

	// Simulate a worker that died after persisting the first chunk.
	partial := Job{
		ID:     jobID,
		Total:  40,
		Status: StatusProcessing,
	}
	for _, id := range ids[:20] {
		partial.Results = append(partial.Results, Result{ArticleID: id, RelevanceScore: 0.5})
	}
	partial.Processed = len(partial.Results)
	fields, err := jobFields(partial)
	if err != nil {
		t.Fatalf("jobFields failed: %v", err)
	}
	if err := store.SetFields(context.Background(), jobID, fields); err != nil {
		t.Fatalf("SetFields failed: %v", err)
	}

	o.Run(context.Background(), *task)

	job, err := o.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.Processed != 40 || len(job.Results) != 40 {
		t.Errorf("resume double-counted or lost work: processed=%d results=%d", job.Processed, len(job.Results))
	}
	// Scores written before the crash survive untouched.
	for _, r := range job.Results[:20] {
		if r.RelevanceScore != 0.5 {
			t.Errorf("pre-crash result for %s was rewritten: %f", r.ArticleID, r.RelevanceScore)
		}
	}
}

// failingCatalog fails GetByIDs for the chunk containing a chosen id.
type failingCatalog struct {
	inner  article.Catalog
	failID string
}

func (c *failingCatalog) GetByIDs(ctx context.Context, ids []string) ([]article.Article, error) {
	for _, id := range ids {
		if id == c.failID {
			return nil, errors.New("catalog unavailable")
		}
	}
	return c.inner.GetByIDs(ctx, ids)
}

func (c *failingCatalog) List(ctx context.Context, opts article.ListOptions) ([]article.Article, error) {
	return c.inner.List(ctx, opts)
}

func TestRunChunkErrorContinues(t *testing.T) {
	inner := article.NewInMemoryCatalog()
	ids := seedCatalog(inner, 60)
	// Second chunk (ids 20-39) fails; first and third succeed.
	catalog := &failingCatalog{inner: inner, failID: "article-25"}
	queue := NewInMemoryQueue(4)
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), queue)

	jobID, err := o.Submit(context.Background(), ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	task, _ := queue.Dequeue(context.Background())
	o.Run(context.Background(), *task)

	job, err := o.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed despite chunk failure, got %s", job.Status)
	}
	if job.Processed != 40 {
		t.Errorf("expected 40 processed (failed chunk dropped), got %d", job.Processed)
	}
	if len(job.Results) != job.Processed {
		t.Errorf("results/processed mismatch: %d/%d", len(job.Results), job.Processed)
	}
}

func TestStatusNeverCreatedJob(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	o := testOrchestrator(catalog, NewInMemoryProgressStore(), NewInMemoryQueue(4))

	job, err := o.Status(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != StatusExpired {
		t.Errorf("expected expired, got %s", job.Status)
	}
	if job.Total != 0 || job.Processed != 0 || len(job.Results) != 0 {
		t.Errorf("synthetic record not empty: %+v", job)
	}
	if job.ProgressPercentage() != 0 {
		t.Errorf("expected progress 0, got %d", job.ProgressPercentage())
	}
}

func TestStatusReArmsTTLWhileProcessing(t *testing.T) {
	catalog := article.NewInMemoryCatalog()
	ids := seedCatalog(catalog, 2)
	store := NewInMemoryProgressStore()
	o := testOrchestrator(catalog, store, NewInMemoryQueue(4))

	jobID, err := o.Submit(context.Background(), ids, testPersona())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Shrink the remaining TTL, then observe the job; the poll must
	// push the deadline back out to the full job TTL.
	if err := store.Expire(context.Background(), jobID, time.Second); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if _, err := o.Status(context.Background(), jobID); err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	ttl, ok := store.TTL(jobID)
	if !ok {
		t.Fatal("job has no TTL after poll")
	}
	if ttl <= time.Second {
		t.Errorf("poll did not re-arm TTL: %s remaining", ttl)
	}
}

func TestProgressPercentage(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		total     int
		want      int
	}{
		{"zero total", 0, 0, 0},
		{"not started", 0, 100, 0},
		{"half", 50, 100, 50},
		{"rounds up", 2, 3, 67},
		{"rounds down", 1, 3, 33},
		{"complete", 250, 250, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := Job{Processed: tt.processed, Total: tt.total}
			if got := j.ProgressPercentage(); got != tt.want {
				t.Errorf("ProgressPercentage() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 45)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	chunks := chunkIDs(ids, 20)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 20 || len(chunks[1]) != 20 || len(chunks[2]) != 5 {
		t.Errorf("unexpected chunk sizes: %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[2][4] != "id-44" {
		t.Errorf("last id misplaced: %s", chunks[2][4])
	}

	if got := chunkIDs(nil, 20); len(got) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(got))
	}
}
