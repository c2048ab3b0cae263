package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/briefcast/briefcast/internal/persona"
)

// Task is one queued batch scoring job. The payload is CBOR-encoded on
// the wire; article ids are carried in submission order.
type Task struct {
	JobID      string          `cbor:"job_id"`
	ArticleIDs []string        `cbor:"article_ids"`
	Persona    persona.Persona `cbor:"persona"`
}

// ErrQueueClosed is returned by Dequeue after the queue is closed.
var ErrQueueClosed = errors.New("queue closed")

// Queue hands scoring tasks from the submission path to workers.
type Queue interface {
	// Enqueue appends a task to the queue.
	Enqueue(ctx context.Context, task Task) error

	// Dequeue blocks for the next task. It returns (nil, nil) when the
	// wait times out with nothing available, so callers can re-check
	// for shutdown between polls.
	Dequeue(ctx context.Context) (*Task, error)
}

// EncodeTask serializes a task to its CBOR wire form.
func EncodeTask(task Task) ([]byte, error) {
	data, err := cbor.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", task.JobID, err)
	}
	return data, nil
}

// DecodeTask parses a CBOR-encoded task payload.
func DecodeTask(data []byte) (*Task, error) {
	var task Task
	if err := cbor.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}

// taskQueueKey is the Redis list holding pending scoring tasks.
const taskQueueKey = "scoring_tasks"

// RedisQueue implements Queue on a Redis list. Enqueue pushes to the
// head, workers pop from the tail, so tasks are delivered in
// submission order.
type RedisQueue struct {
	client     *redis.Client
	popTimeout time.Duration
}

// NewRedisQueue creates a Redis-backed task queue. popTimeout bounds
// how long Dequeue blocks before returning empty-handed.
func NewRedisQueue(client *redis.Client, popTimeout time.Duration) *RedisQueue {
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	return &RedisQueue{client: client, popTimeout: popTimeout}
}

// Enqueue pushes the CBOR-encoded task onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	data, err := EncodeTask(task)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, taskQueueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.JobID, err)
	}
	return nil
}

// Dequeue blocks up to the pop timeout for the next task.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	vals, err := q.client.BRPop(ctx, q.popTimeout, taskQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	// BRPOP returns [key, value].
	if len(vals) != 2 {
		return nil, fmt.Errorf("dequeue task: unexpected reply length %d", len(vals))
	}
	return DecodeTask([]byte(vals[1]))
}

// InMemoryQueue implements Queue on a buffered channel. Intended for
// tests and single-process deployments without Redis. Payloads still
// round-trip through the CBOR codec so both queues exercise the same
// wire format.
type InMemoryQueue struct {
	tasks chan []byte

	mu     sync.Mutex
	closed bool
}

// NewInMemoryQueue creates an in-memory queue holding up to size
// pending tasks.
func NewInMemoryQueue(size int) *InMemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &InMemoryQueue{tasks: make(chan []byte, size)}
}

// Enqueue appends a task, failing when the buffer is full or the queue
// is closed.
func (q *InMemoryQueue) Enqueue(ctx context.Context, task Task) error {
	data, err := EncodeTask(task)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()

	select {
	case q.tasks <- data:
		return nil
	default:
		return fmt.Errorf("enqueue task %s: queue full", task.JobID)
	}
}

// Dequeue blocks for the next task, the context, or queue close.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case data, ok := <-q.tasks:
		if !ok {
			return nil, ErrQueueClosed
		}
		return DecodeTask(data)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the queue. Pending tasks already enqueued are still
// delivered before Dequeue starts returning ErrQueueClosed.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
}
