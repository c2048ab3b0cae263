package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// WorkerConfig configures the batch scoring worker.
type WorkerConfig struct {
	// Logger for worker activity.
	Logger *slog.Logger
}

// Worker consumes scoring tasks from the queue and runs them through
// the orchestrator, one at a time.
type Worker struct {
	config       WorkerConfig
	queue        Queue
	orchestrator *Orchestrator

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
}

// NewWorker creates a batch scoring worker.
func NewWorker(config WorkerConfig, queue Queue, orchestrator *Orchestrator) *Worker {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Worker{
		config:       config,
		queue:        queue,
		orchestrator: orchestrator,
	}
}

// Start begins consuming tasks.
// Returns immediately; the worker runs in a background goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(runCtx)
	return nil
}

// Stop signals the worker to stop, unblocks any pending dequeue, and
// waits for the current task to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh := w.stopCh
	doneCh := w.doneCh
	cancel := w.cancel
	w.mu.Unlock()

	close(stopCh)
	cancel()
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// IsRunning returns whether the worker is currently running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main consume loop. Dequeue blocks with a bounded timeout
// so the loop re-checks the stop signal between polls.
func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			w.config.Logger.Info("batch worker stopping due to context cancellation")
			return
		case <-w.stopCh:
			w.config.Logger.Info("batch worker stopping due to stop signal")
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return
			}
			w.config.Logger.Error("failed to dequeue scoring task", "error", err)
			continue
		}
		if task == nil {
			continue
		}

		w.config.Logger.Info("batch scoring task dequeued",
			"job_id", task.JobID,
			"articles", len(task.ArticleIDs))
		w.orchestrator.Run(ctx, *task)
	}
}
