package batch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryProgressStore implements ProgressStore using in-memory maps.
// Intended for tests and single-process deployments without Redis.
// Thread-safe for concurrent access.
type InMemoryProgressStore struct {
	mu      sync.RWMutex
	jobs    map[string]map[string]string
	expires map[string]time.Time
	now     func() time.Time
}

// NewInMemoryProgressStore creates an empty in-memory progress store.
func NewInMemoryProgressStore() *InMemoryProgressStore {
	return &InMemoryProgressStore{
		jobs:    make(map[string]map[string]string),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetFields writes the given fields for the job.
func (s *InMemoryProgressStore) SetFields(ctx context.Context, jobID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(jobID)
	existing, ok := s.jobs[jobID]
	if !ok {
		existing = make(map[string]string)
		s.jobs[jobID] = existing
	}
	for k, v := range fields {
		existing[k] = fmt.Sprintf("%v", v)
	}
	return nil
}

// Get returns the stored fields for the job, or nil when absent.
func (s *InMemoryProgressStore) Get(ctx context.Context, jobID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(jobID)
	fields, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied, nil
}

// Expire sets or refreshes the job's time-to-live.
func (s *InMemoryProgressStore) Expire(ctx context.Context, jobID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil
	}
	s.expires[jobID] = s.now().Add(ttl)
	return nil
}

// TTL returns the remaining time-to-live for a job, or false when the
// job has no deadline or does not exist.
func (s *InMemoryProgressStore) TTL(jobID string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deadline, ok := s.expires[jobID]
	if !ok {
		return 0, false
	}
	return deadline.Sub(s.now()), true
}

// evictLocked drops the job if its deadline has passed. Callers must
// hold the write lock.
func (s *InMemoryProgressStore) evictLocked(jobID string) {
	deadline, ok := s.expires[jobID]
	if ok && s.now().After(deadline) {
		delete(s.jobs, jobID)
		delete(s.expires, jobID)
	}
}
