// Package dispatch decouples the callback request path from enrichment work.
// Submissions land on an unbounded in-memory FIFO served by a fixed pool of
// workers; failed tasks are retried whole with a growing delay and abandoned
// once the attempt budget runs out.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/videoauto/mps-callback/internal/callback/domain"
)

// Task describes one pending enrichment.
type Task struct {
	JobID             string
	SourceSubtitleURL string

	attempt int
}

// Runner executes a single enrichment attempt.
type Runner interface {
	Run(ctx context.Context, jobID, sourceSubtitleURL string) error
}

// EventSink receives terminal task outcomes. Implementations must not block
// for long; failures are logged, never propagated.
type EventSink interface {
	EnrichmentCompleted(ctx context.Context, jobID string) error
	EnrichmentAbandoned(ctx context.Context, jobID string, reason error) error
}

// Config holds dispatcher settings.
type Config struct {
	Logger         *slog.Logger
	Runner         Runner
	Concurrency    int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Events         EventSink // optional
}

// Dispatcher owns the worker pool and the whole-task retry policy. This
// policy is deliberately separate from the store gateway's per-operation
// retry: one guards a single database write, the other a multi-step pipeline.
type Dispatcher struct {
	logger      *slog.Logger
	runner      Runner
	concurrency int
	maxAttempts int
	retryBase   time.Duration
	events      EventSink
	workerID    string

	ctx context.Context

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*Task
	draining bool
	stopped  bool

	inflight sync.WaitGroup
	wg       sync.WaitGroup
}

// New creates a Dispatcher.
func New(cfg *Config) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = time.Minute
	}

	d := &Dispatcher{
		logger:      cfg.Logger,
		runner:      cfg.Runner,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		events:      cfg.Events,
		workerID:    uuid.New().String(),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start spawns the worker pool. ctx is handed to every task run; it should
// outlive Drain so that in-flight tasks are never interrupted mid-write.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx = ctx

	d.logger.Info("Starting enrichment dispatcher",
		slog.Int("concurrency", d.concurrency),
		slog.Int("max_attempts", d.maxAttempts),
		slog.Duration("retry_base_delay", d.retryBase),
		slog.String("worker_id", d.workerID),
	)

	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

// Submit schedules a task for asynchronous execution and returns immediately.
// Submissions after Drain has begun are dropped.
func (d *Dispatcher) Submit(task Task) {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		d.logger.Warn("Submission rejected, dispatcher is draining",
			slog.String("job_id", task.JobID),
		)
		return
	}
	d.inflight.Add(1)
	d.queue = append(d.queue, &task)
	d.mu.Unlock()
	d.cond.Signal()

	d.logger.Info("Enrichment task submitted",
		slog.String("job_id", task.JobID),
		slog.String("source_subtitle_url", task.SourceSubtitleURL),
	)
}

// Drain stops accepting submissions and waits for in-flight and retry-pending
// tasks, bounded by ctx. Tasks still pending past the deadline are abandoned;
// a task already running is left to finish so a half-written artifact is
// never published.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	d.logger.Info("Draining enrichment dispatcher")

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-ctx.Done():
		drainErr = ctx.Err()
	}

	d.mu.Lock()
	d.stopped = true
	abandoned := len(d.queue)
	for _, t := range d.queue {
		d.logger.Error("Task abandoned at shutdown",
			slog.String("job_id", t.JobID),
			slog.Int("attempts", t.attempt),
		)
		d.inflight.Done()
	}
	d.queue = nil
	d.mu.Unlock()
	d.cond.Broadcast()

	if drainErr != nil {
		d.logger.Warn("Dispatcher drain timed out",
			slog.Int("abandoned", abandoned),
		)
		return drainErr
	}

	d.wg.Wait()
	d.logger.Info("Enrichment dispatcher drained")
	return nil
}

// workerLoop pulls tasks until the dispatcher stops.
func (d *Dispatcher) workerLoop(num int) {
	defer d.wg.Done()

	log := d.logger.With(
		slog.String("worker_id", d.workerID),
		slog.Int("worker_num", num),
	)
	log.Debug("Enrichment worker started")

	for {
		task := d.next()
		if task == nil {
			log.Debug("Enrichment worker stopping")
			return
		}
		d.execute(task)
	}
}

// next blocks until a task is available or the dispatcher stops.
func (d *Dispatcher) next() *Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.queue) == 0 && !d.stopped {
		d.cond.Wait()
	}
	if d.stopped {
		return nil
	}

	task := d.queue[0]
	d.queue = d.queue[1:]
	return task
}

// execute runs one attempt and applies the retry/abandon policy.
func (d *Dispatcher) execute(task *Task) {
	task.attempt++

	log := d.logger.With(
		slog.String("job_id", task.JobID),
		slog.Int("attempt", task.attempt),
		slog.Int("max_attempts", d.maxAttempts),
	)

	err := d.runner.Run(d.ctx, task.JobID, task.SourceSubtitleURL)
	if err == nil {
		d.inflight.Done()
		if d.events != nil {
			if evErr := d.events.EnrichmentCompleted(d.ctx, task.JobID); evErr != nil {
				log.Warn("Failed to publish completion event", slog.String("error", evErr.Error()))
			}
		}
		return
	}

	if domain.IsPermanent(err) {
		log.Error("Task failed permanently, not retrying", slog.String("error", err.Error()))
		d.abandon(task, err)
		return
	}

	if task.attempt >= d.maxAttempts {
		log.Error("Task exhausted retry budget", slog.String("error", err.Error()))
		d.abandon(task, err)
		return
	}

	delay := d.retryBase << (task.attempt - 1)
	log.Warn("Task failed, retry scheduled",
		slog.Duration("retry_after", delay),
		slog.String("error", err.Error()),
	)

	time.AfterFunc(delay, func() {
		d.requeue(task, err)
	})
}

// requeue puts a failed task back on the queue once its retry delay elapses.
// If the dispatcher stopped in the meantime the task is abandoned instead.
func (d *Dispatcher) requeue(task *Task, lastErr error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.logger.Error("Retry dropped, dispatcher stopped",
			slog.String("job_id", task.JobID),
			slog.Int("attempts", task.attempt),
			slog.String("last_error", lastErr.Error()),
		)
		d.inflight.Done()
		return
	}
	d.queue = append(d.queue, task)
	d.mu.Unlock()
	d.cond.Signal()
}

// abandon records a terminal failure with enough context for manual replay.
func (d *Dispatcher) abandon(task *Task, reason error) {
	d.logger.Error("Enrichment task abandoned",
		slog.String("job_id", task.JobID),
		slog.String("source_subtitle_url", task.SourceSubtitleURL),
		slog.Int("attempts", task.attempt),
		slog.String("last_error", reason.Error()),
	)
	d.inflight.Done()
	if d.events != nil {
		if evErr := d.events.EnrichmentAbandoned(d.ctx, task.JobID, reason); evErr != nil {
			d.logger.Warn("Failed to publish abandonment event",
				slog.String("job_id", task.JobID),
				slog.String("error", evErr.Error()),
			)
		}
	}
}
