// Package batch provides asynchronous batch scoring jobs: submission,
// chunked execution against the scoring engine, and TTL-bounded
// progress tracking.
package batch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Status is the lifecycle state of a scoring job.
type Status string

// Job lifecycle states. A job reaches exactly one of the terminal
// states (completed, failed) and is never mutated afterwards except
// for TTL refresh. Expired is synthetic: it is what Status reports for
// a key the store no longer holds, whether the job was reclaimed or
// never existed.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Result is one scored article, in chunk-completion order.
type Result struct {
	ArticleID      string  `json:"article_id"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Job is the progress record for one batch scoring job. It lives only
// in the ProgressStore; there is no other source of truth.
type Job struct {
	ID        string   `json:"job_id"`
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Status    Status   `json:"status"`
	Results   []Result `json:"results"`
	Error     string   `json:"error,omitempty"`
}

// ProgressPercentage returns round(100 * processed / total), guarded
// against division by zero.
func (j *Job) ProgressPercentage() int {
	if j.Total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(j.Processed) / float64(j.Total)))
}

// ExpiredJob is the synthetic record returned for an absent store key.
// Expiry is an ordinary outcome, not an error: the result may already
// have been delivered, or the job was reclaimed, or it never existed.
func ExpiredJob(id string) Job {
	return Job{
		ID:      id,
		Status:  StatusExpired,
		Results: []Result{},
	}
}

// Store field names for the job hash.
const (
	fieldTotal     = "total"
	fieldProcessed = "processed"
	fieldSkipped   = "skipped"
	fieldStatus    = "status"
	fieldResults   = "results"
	fieldError     = "error"
)

// jobFields serializes a job into the flat field map written to the
// ProgressStore. Processed and results are always written together so
// no read can observe an inconsistent pair.
func jobFields(j Job) (map[string]any, error) {
	results, err := json.Marshal(j.Results)
	if err != nil {
		return nil, fmt.Errorf("marshal job results: %w", err)
	}
	fields := map[string]any{
		fieldTotal:     j.Total,
		fieldProcessed: j.Processed,
		fieldSkipped:   j.Skipped,
		fieldStatus:    string(j.Status),
		fieldResults:   string(results),
	}
	if j.Error != "" {
		fields[fieldError] = j.Error
	}
	return fields, nil
}

// jobFromFields reconstructs a job from stored field values.
func jobFromFields(id string, fields map[string]string) (Job, error) {
	j := Job{
		ID:      id,
		Status:  Status(fields[fieldStatus]),
		Error:   fields[fieldError],
		Results: []Result{},
	}

	var err error
	if raw, ok := fields[fieldTotal]; ok {
		if j.Total, err = strconv.Atoi(raw); err != nil {
			return Job{}, fmt.Errorf("parse job total: %w", err)
		}
	}
	if raw, ok := fields[fieldProcessed]; ok {
		if j.Processed, err = strconv.Atoi(raw); err != nil {
			return Job{}, fmt.Errorf("parse job processed: %w", err)
		}
	}
	if raw, ok := fields[fieldSkipped]; ok {
		if j.Skipped, err = strconv.Atoi(raw); err != nil {
			return Job{}, fmt.Errorf("parse job skipped: %w", err)
		}
	}
	if raw, ok := fields[fieldResults]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &j.Results); err != nil {
			return Job{}, fmt.Errorf("parse job results: %w", err)
		}
	}
	return j, nil
}
