// Package worker defines worker contracts for asynchronous ingestion
// and embedding.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/gambit/internal/adapters/embedder"
	"github.com/okian/gambit/internal/adapters/mq/queue"
	"github.com/okian/gambit/internal/adapters/repository"
	"github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/internal/domain/notation"
	"github.com/okian/gambit/pkg/logger"
	"github.com/okian/gambit/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second

	// maxEmbedAttempts bounds embedding retries per game. A game that
	// exhausts the budget stays stored without a vector; the pending
	// sweep picks it up once the provider recovers.
	maxEmbedAttempts = 5
)

// Task abstracts what workers read off the queue.
// Using the queue.Task type for consistency.
type Task = queue.Task

// Ingester stores a record and returns the persisted game.
type Ingester interface {
	IngestRecord(ctx context.Context, rec model.Record) (model.Game, error)
}

// Embedder computes and persists the vector for a stored game.
type Embedder interface {
	EmbedGame(ctx context.Context, gameID, sourceText string) error
}

// Queue defines how workers receive tasks and hand retries back.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
	Enqueue(ctx context.Context, t Task) bool
}

// Worker processes ingestion tasks using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining tasks before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing ingestion tasks.
type InMemoryWorker struct {
	queue    Queue
	ingester Ingester
	embedder Embedder
	name     string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, ingester Ingester, emb Embedder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		ingester: ingester,
		embedder: emb,
		name:     "worker", // default name
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"), // will be updated by options
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	taskChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-taskChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.processTask(ctx, task); err != nil {
				w.logger.Error(ctx, "error processing task", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	// Signal shutdown
	close(w.shutdown)

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processTask handles a single task.
func (w *InMemoryWorker) processTask(ctx context.Context, task Task) error { //nolint:gocritic // hugeParam: Task must be passed by value for channel semantics
	// Track overall processing latency
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordWorkerProcessingLatency(float64(latency))
	}()

	switch task.Kind {
	case queue.TaskEmbed:
		return w.embed(ctx, task)
	default:
		return w.ingest(ctx, task)
	}
}

// ingest stores the record and computes its embedding. A duplicate or
// malformed record is an expected outcome, not a worker error; an
// unavailable embedder defers the vector to a retry task so the game
// itself is never lost. A duplicate is a merge into the stored game,
// so its embedding step still runs.
func (w *InMemoryWorker) ingest(ctx context.Context, task Task) error { //nolint:gocritic // hugeParam: Task must be passed by value for channel semantics
	game, err := w.ingester.IngestRecord(ctx, task.Record)
	switch {
	case errors.Is(err, repository.ErrDuplicateGame):
		w.logger.Debug(ctx, "duplicate game merged",
			logger.String("gameID", game.ID),
			logger.String("white", task.Record.White),
			logger.String("black", task.Record.Black))
	case errors.Is(err, notation.ErrMalformedRecord):
		w.logger.Warn(ctx, "malformed record dropped", logger.Error(err))
		return nil
	case err != nil:
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "ingest_error")
		metrics.RecordErrorByType("ingest_error", "high")
		return fmt.Errorf("ingest record failed: %w", err)
	}

	return w.embed(ctx, Task{
		Kind:       queue.TaskEmbed,
		GameID:     game.ID,
		SourceText: task.Record.MoveText,
		Attempt:    0,
	})
}

// embed computes the vector for a stored game, requeueing on
// transient provider failures.
func (w *InMemoryWorker) embed(ctx context.Context, task Task) error { //nolint:gocritic // hugeParam: Task must be passed by value for channel semantics
	err := w.embedder.EmbedGame(ctx, task.GameID, task.SourceText)
	if err == nil {
		return nil
	}
	if !errors.Is(err, embedder.ErrUnavailable) {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "embed_error")
		return fmt.Errorf("embed game %s failed: %w", task.GameID, err)
	}

	if task.Attempt+1 >= maxEmbedAttempts {
		w.logger.Warn(ctx, "embedding retries exhausted, game stored without vector",
			logger.String("gameID", task.GameID),
			logger.Int("attempts", task.Attempt+1))
		return nil
	}

	retry := task
	retry.Attempt++
	metrics.RecordWorkerRetry()
	if !w.queue.Enqueue(ctx, retry) {
		w.logger.Error(ctx, "embedding retry dropped, queue rejected task",
			logger.String("gameID", task.GameID))
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	ingester Ingester
	embedder Embedder

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, q Queue, ingester Ingester, emb Embedder) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		ingester: ingester,
		embedder: emb,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			q,
			ingester,
			emb,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	// Initialize worker metrics
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerIdleCount(0)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}

	// Start metrics updater
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater starts a background goroutine that refreshes
// queue depth metrics.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			if lener, ok := p.queue.(interface{ Len(context.Context) int }); ok {
				metrics.UpdateQueueSize(lener.Len(ctx))
			}
		}
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	// Signal shutdown to all workers
	close(p.shutdown)
	for _, worker := range p.workers {
		close(worker.shutdown)
	}

	// Wait for all workers to finish
	for _, worker := range p.workers {
		select {
		case <-worker.done:
			// Worker finished
		case <-time.After(workerShutdownTimeout):
			// Worker timeout
		}
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new tasks
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	// Signal shutdown to all workers
	close(p.shutdown)

	// Wait for all workers to finish or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
