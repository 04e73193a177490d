package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/idscan/internal/core"
)

// FileProcessor runs the scan pipeline for one stored file.
type FileProcessor interface {
	ProcessFile(ctx context.Context, fileID uuid.UUID) (core.Outcome, error)
}

// ProcessorQueue feeds jobs to a fixed pool of workers.
type ProcessorQueue struct {
	proc    FileProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	limiter *rate.Limiter
	onDone  func(Job, core.Outcome, error)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// halt is cancelled when Shutdown gives up waiting. In-flight jobs and
	// rate waits see it through their context; buffered jobs are skipped.
	halt     context.Context
	haltFunc context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRateLimit caps how many files per second the workers start, shared
// across the pool. OCR is CPU heavy; this keeps a bulk import from starving
// the gRPC handlers.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(q *ProcessorQueue) {
		if limit > 0 {
			if burst < 1 {
				burst = 1
			}
			q.limiter = rate.NewLimiter(limit, burst)
		}
	}
}

// WithCompletion registers a callback run by the worker after every job.
func WithCompletion(fn func(Job, core.Outcome, error)) Option {
	return func(q *ProcessorQueue) { q.onDone = fn }
}

func NewProcessorQueue(proc FileProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	q.halt, q.haltFunc = context.WithCancel(context.Background())
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(i + 1)
		}
	})
}

func (q *ProcessorQueue) work(workerID int) {
	defer q.wg.Done()
	q.logger.Debug("worker started", "worker_id", workerID)

	for job := range q.ch {
		if q.halt.Err() != nil {
			q.drop(workerID, job, ErrQueueStopped)
			continue
		}
		if err := q.wait(); err != nil {
			q.drop(workerID, job, err)
			continue
		}

		ctx, cancel := context.WithTimeout(q.halt, q.timeout)
		out, err := q.proc.ProcessFile(ctx, job.FileID)
		cancel()

		if err != nil {
			q.logger.Error("processing failed", "worker_id", workerID, "file_id", job.FileID, "trace_id", job.TraceID, "error", err)
		} else {
			q.logger.Info("processed file successfully",
				"worker_id", workerID,
				"file_id", job.FileID,
				"trace_id", job.TraceID,
				"needs_review", out.NeedsReview,
				"queued_for", time.Since(job.SubmittedAt).Round(time.Millisecond))
		}
		q.complete(job, out, err)
	}

	q.logger.Debug("worker stopped", "worker_id", workerID)
}

func (q *ProcessorQueue) drop(workerID int, job Job, err error) {
	q.logger.Warn("dropping job after shutdown deadline", "worker_id", workerID, "file_id", job.FileID, "error", err)
	q.complete(job, core.Outcome{FileID: job.FileID}, err)
}

// wait blocks on the rate limiter until a token is free or the queue is halted.
func (q *ProcessorQueue) wait() error {
	if q.limiter == nil {
		return nil
	}
	if err := q.limiter.Wait(q.halt); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

func (q *ProcessorQueue) complete(job Job, out core.Outcome, err error) {
	if q.onDone != nil {
		q.onDone(job, out, err)
	}
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "file_id", job.FileID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued file for processing", "file_id", job.FileID, "force", job.Force)
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "file_id", job.FileID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", job.FileID, ctx.Err())
	}
}

// Shutdown stops intake and waits for queued jobs to drain. If ctx ends
// first, in-flight jobs are cancelled, buffered jobs complete with
// ErrQueueStopped, and Shutdown returns once every worker has exited.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.haltFunc()
		q.logger.Warn("shutdown interrupted by context, cancelling remaining jobs")
		<-done
	case <-done:
		q.haltFunc()
		q.logger.Info("queue drained, shutdown complete")
	}
}
