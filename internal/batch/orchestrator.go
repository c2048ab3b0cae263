package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/persona"
	"github.com/briefcast/briefcast/internal/scoring"
)

// Submission validation errors.
var (
	ErrNoArticleIDs = errors.New("no article ids supplied")
	ErrEmptyPersona = errors.New("persona has no attributes")
)

// Default orchestration parameters.
const (
	DefaultChunkSize       = 20
	DefaultJobTTL          = 30 * time.Minute
	DefaultResultTTL       = 2 * time.Hour
	DefaultChunkBackoff    = 2 * time.Second
	DefaultWriteRetryPause = 500 * time.Millisecond
)

// OrchestratorConfig configures a batch scoring orchestrator.
type OrchestratorConfig struct {
	// ChunkSize is the number of articles scored per chunk.
	ChunkSize int
	// JobTTL bounds how long an in-progress job record survives
	// without observation.
	JobTTL time.Duration
	// ResultTTL is the retention window for completed results.
	ResultTTL time.Duration
	// ChunkBackoff is the pause after a failed chunk before moving on.
	ChunkBackoff time.Duration
	// Logger for orchestration activity.
	Logger *slog.Logger
	// Metrics for job tracking. Optional.
	Metrics *Metrics
}

// Orchestrator runs batch scoring jobs: it accepts submissions,
// executes them chunk by chunk against the scoring engine, and keeps
// the progress record current so pollers always see a consistent
// snapshot.
type Orchestrator struct {
	config  OrchestratorConfig
	engine  *scoring.Engine
	catalog article.Catalog
	store   ProgressStore
	queue   Queue
}

// NewOrchestrator creates a batch scoring orchestrator.
func NewOrchestrator(
	config OrchestratorConfig,
	engine *scoring.Engine,
	catalog article.Catalog,
	store ProgressStore,
	queue Queue,
) *Orchestrator {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.JobTTL <= 0 {
		config.JobTTL = DefaultJobTTL
	}
	if config.ResultTTL <= 0 {
		config.ResultTTL = DefaultResultTTL
	}
	if config.ChunkBackoff <= 0 {
		config.ChunkBackoff = DefaultChunkBackoff
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Orchestrator{
		config:  config,
		engine:  engine,
		catalog: catalog,
		store:   store,
		queue:   queue,
	}
}

// Submit validates a batch request, creates the job record, and
// enqueues the work. It returns the job id immediately; scoring
// happens on a worker. The returned id is only valid once the initial
// record is written, so a store failure here surfaces to the caller.
func (o *Orchestrator) Submit(ctx context.Context, ids []string, p persona.Persona) (string, error) {
	if len(ids) == 0 {
		return "", ErrNoArticleIDs
	}
	if p.IsEmpty() {
		return "", ErrEmptyPersona
	}

	// Total counts distinct articles; each id is scored once no matter
	// how often it was submitted.
	ids = dedupeIDs(ids)

	jobID := uuid.NewString()
	initial := Job{
		ID:      jobID,
		Total:   len(ids),
		Status:  StatusProcessing,
		Results: []Result{},
	}
	if err := o.writeJob(ctx, initial, o.config.JobTTL); err != nil {
		return "", fmt.Errorf("create job record: %w", err)
	}

	task := Task{JobID: jobID, ArticleIDs: ids, Persona: p}
	if err := o.queue.Enqueue(ctx, task); err != nil {
		o.markFailed(ctx, initial, "job could not be queued")
		return "", fmt.Errorf("enqueue job %s: %w", jobID, err)
	}

	o.config.Logger.Info("batch scoring job submitted",
		"job_id", jobID,
		"total", len(ids))
	return jobID, nil
}

// Run executes a dequeued task to completion. Chunks are processed
// sequentially; each chunk's results are appended and persisted before
// the next chunk starts, so a poller's processed count only ever grows
// and always matches the results it arrives with. Re-delivered tasks
// skip article ids already present in the stored results.
func (o *Orchestrator) Run(ctx context.Context, task Task) {
	start := time.Now()
	logger := o.config.Logger.With("job_id", task.JobID)

	// Tasks enqueued by Submit carry distinct ids already; this guards
	// tasks injected by other producers.
	task.ArticleIDs = dedupeIDs(task.ArticleIDs)

	if o.config.Metrics != nil {
		o.config.Metrics.JobStarted()
		defer o.config.Metrics.JobFinished()
	}

	job, err := o.loadJob(ctx, task)
	if err != nil {
		logger.Error("job record unreadable before first chunk", "error", err)
		o.finishJob(ctx, logger, Job{ID: task.JobID, Total: len(task.ArticleIDs), Results: []Result{}},
			StatusFailed, "progress store unreachable", start)
		return
	}
	if job.Status != StatusProcessing {
		// Terminal record from an earlier delivery of the same task.
		logger.Info("skipping re-delivered task for finished job", "status", job.Status)
		return
	}

	scored := make(map[string]bool, len(job.Results))
	for _, r := range job.Results {
		scored[r.ArticleID] = true
	}

	for _, chunk := range chunkIDs(task.ArticleIDs, o.config.ChunkSize) {
		select {
		case <-ctx.Done():
			logger.Info("batch scoring interrupted", "processed", job.Processed)
			return
		default:
		}

		pending := make([]string, 0, len(chunk))
		for _, id := range chunk {
			if !scored[id] {
				pending = append(pending, id)
			}
		}
		if len(pending) == 0 {
			continue
		}

		articles, err := o.catalog.GetByIDs(ctx, pending)
		if err != nil {
			logger.Error("chunk fetch failed, continuing with next chunk",
				"chunk_size", len(pending),
				"error", err)
			if o.config.Metrics != nil {
				o.config.Metrics.IncChunkErrors("catalog_fetch")
			}
			time.Sleep(o.config.ChunkBackoff)
			continue
		}

		if skipped := len(pending) - len(articles); skipped > 0 {
			job.Skipped += skipped
			if o.config.Metrics != nil {
				o.config.Metrics.AddArticlesSkipped(skipped)
			}
		}

		scores := o.engine.ScoreBatch(ctx, articles, task.Persona, len(articles))
		for i, a := range articles {
			job.Results = append(job.Results, Result{ArticleID: a.ID, RelevanceScore: scores[i]})
			scored[a.ID] = true
		}
		job.Processed = len(job.Results)

		if err := o.writeJobWithRetry(ctx, job, o.config.JobTTL); err != nil {
			logger.Error("progress write failed after retry",
				"processed", job.Processed,
				"error", err)
			if o.config.Metrics != nil {
				o.config.Metrics.IncChunkErrors("store_write")
			}
			time.Sleep(o.config.ChunkBackoff)
			continue
		}

		if o.config.Metrics != nil {
			o.config.Metrics.IncChunksTotal()
		}
		logger.Debug("chunk scored",
			"processed", job.Processed,
			"total", job.Total)
	}

	o.finishJob(ctx, logger, job, StatusCompleted, "", start)
}

// Status reads the current job record. An absent key is reported as a
// synthetic expired record rather than an error; a record still
// processing gets its TTL re-armed so actively polled jobs are not
// reclaimed mid-flight.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (Job, error) {
	fields, err := o.store.Get(ctx, jobID)
	if err != nil {
		return Job{}, fmt.Errorf("read job status: %w", err)
	}
	if fields == nil {
		return ExpiredJob(jobID), nil
	}

	job, err := jobFromFields(jobID, fields)
	if err != nil {
		return Job{}, err
	}
	if job.Status == StatusProcessing {
		if err := o.store.Expire(ctx, jobID, o.config.JobTTL); err != nil {
			o.config.Logger.Warn("failed to re-arm job TTL",
				"job_id", jobID,
				"error", err)
		}
	}
	return job, nil
}

// loadJob reads the stored record for a dequeued task, falling back to
// a fresh record when the key already expired between submit and
// dequeue.
func (o *Orchestrator) loadJob(ctx context.Context, task Task) (Job, error) {
	fields, err := o.store.Get(ctx, task.JobID)
	if err != nil {
		return Job{}, err
	}
	if fields == nil {
		job := Job{
			ID:      task.JobID,
			Total:   len(task.ArticleIDs),
			Status:  StatusProcessing,
			Results: []Result{},
		}
		if err := o.writeJob(ctx, job, o.config.JobTTL); err != nil {
			return Job{}, err
		}
		return job, nil
	}
	return jobFromFields(task.JobID, fields)
}

// finishJob writes the terminal record and records job metrics.
func (o *Orchestrator) finishJob(ctx context.Context, logger *slog.Logger, job Job, status Status, errMsg string, start time.Time) {
	job.Status = status
	job.Error = errMsg

	ttl := o.config.ResultTTL
	if status == StatusFailed {
		ttl = o.config.JobTTL
	}
	if err := o.writeJobWithRetry(ctx, job, ttl); err != nil {
		logger.Error("failed to write terminal job record", "error", err)
	}

	duration := time.Since(start).Seconds()
	outcome := outcomeSuccess
	if status != StatusCompleted {
		outcome = outcomeFailure
	}
	if o.config.Metrics != nil {
		o.config.Metrics.IncJobsTotal(outcome)
		o.config.Metrics.ObserveJobDuration(duration)
	}

	logger.Info("batch scoring job finished",
		"status", string(status),
		"processed", job.Processed,
		"skipped", job.Skipped,
		"duration_seconds", duration)
}

// markFailed best-effort flips a job to failed when submission cannot
// proceed past the initial record.
func (o *Orchestrator) markFailed(ctx context.Context, job Job, reason string) {
	job.Status = StatusFailed
	job.Error = reason
	if err := o.writeJob(ctx, job, o.config.JobTTL); err != nil {
		o.config.Logger.Error("failed to mark job failed",
			"job_id", job.ID,
			"error", err)
	}
}

// writeJob persists the full job record and arms its TTL.
func (o *Orchestrator) writeJob(ctx context.Context, job Job, ttl time.Duration) error {
	fields, err := jobFields(job)
	if err != nil {
		return err
	}
	if err := o.store.SetFields(ctx, job.ID, fields); err != nil {
		return err
	}
	return o.store.Expire(ctx, job.ID, ttl)
}

// writeJobWithRetry retries a failed progress write once after a short
// pause.
func (o *Orchestrator) writeJobWithRetry(ctx context.Context, job Job, ttl time.Duration) error {
	if err := o.writeJob(ctx, job, ttl); err == nil {
		return nil
	}
	time.Sleep(DefaultWriteRetryPause)
	return o.writeJob(ctx, job, ttl)
}

// dedupeIDs returns ids with duplicates removed, first occurrence
// order preserved.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	distinct := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		distinct = append(distinct, id)
	}
	return distinct
}

// chunkIDs splits ids into consecutive chunks of at most size.
func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
