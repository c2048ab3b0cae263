package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// jobKeyPrefix namespaces job hashes in Redis.
const jobKeyPrefix = "scoring_job:"

// RedisProgressStore implements ProgressStore on a Redis hash per job.
// HSET applies all fields in one command, which gives the atomic
// multi-field write the interface requires.
type RedisProgressStore struct {
	client *redis.Client
}

// NewRedisProgressStore creates a Redis-backed progress store.
func NewRedisProgressStore(client *redis.Client) *RedisProgressStore {
	return &RedisProgressStore{client: client}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// SetFields writes the given fields to the job hash.
func (s *RedisProgressStore) SetFields(ctx context.Context, jobID string, fields map[string]any) error {
	if err := s.client.HSet(ctx, jobKey(jobID), fields).Err(); err != nil {
		return fmt.Errorf("write job %s: %w", jobID, err)
	}
	return nil
}

// Get returns all fields of the job hash, or nil when the key is gone.
func (s *RedisProgressStore) Get(ctx context.Context, jobID string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", jobID, err)
	}
	// HGETALL returns an empty map for a missing key.
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// Expire sets or refreshes the job hash TTL.
func (s *RedisProgressStore) Expire(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, jobKey(jobID), ttl).Err(); err != nil {
		return fmt.Errorf("expire job %s: %w", jobID, err)
	}
	return nil
}
