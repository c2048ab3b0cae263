package batch

import (
	"context"
	"time"
)

// ProgressStore is the key/value progress backend for scoring jobs.
// Each job is a flat field map under its job id. SetFields must apply
// all fields atomically with respect to Get, so a poller never sees a
// processed count from one write paired with results from another.
type ProgressStore interface {
	// SetFields writes the given fields for the job, creating the key
	// if absent. Existing fields not named are left untouched.
	SetFields(ctx context.Context, jobID string, fields map[string]any) error

	// Get returns the stored fields for the job, or nil when the key
	// does not exist (expired, reclaimed, or never created).
	Get(ctx context.Context, jobID string) (map[string]string, error)

	// Expire sets or refreshes the key's time-to-live.
	Expire(ctx context.Context, jobID string, ttl time.Duration) error
}
