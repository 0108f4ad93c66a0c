package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc"

	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Queue decouples document delivery from processing with a bounded worker pool.
// The Processor's deduplicator keeps two workers off the same document.
type Queue struct {
	proc      *Processor
	logger    *slog.Logger
	workers   int
	timeout   time.Duration
	base      context.Context
	onOutcome func(Outcome)

	ch   chan entity.Document
	wg   conc.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan entity.Document, n)
		}
	}
}

// WithProcessTimeout bounds one document end to end; the extraction deadline sits inside it.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithOnOutcome is called from the worker goroutine after every document.
func WithOnOutcome(fn func(Outcome)) Option {
	return func(q *Queue) { q.onOutcome = fn }
}

// WithBaseContext sets the parent of every per-document context. Its values
// (run id) are kept; cancelling it aborts in-flight documents.
func WithBaseContext(ctx context.Context) Option {
	return func(q *Queue) {
		if ctx != nil {
			q.base = ctx
		}
	}
}

func NewQueue(proc *Processor, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		base:    context.Background(),
		ch:      make(chan entity.Document, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			workerID := i + 1
			q.wg.Go(func() {
				q.logger.Debug("worker started", "worker_id", workerID)
				for doc := range q.ch {
					ctx, cancel := common.WithTimeout(q.base, q.timeout)
					out := q.proc.Process(ctx, doc)
					cancel()
					if q.onOutcome != nil {
						q.onOutcome(out)
					}
				}
				q.logger.Debug("worker stopped", "worker_id", workerID)
			})
		}
	})
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, doc entity.Document) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "document_id", doc.ID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- doc:
		q.logger.Debug("queued document for processing", "document_id", doc.ID, "source", doc.Source)
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "document_id", doc.ID)
	select {
	case q.ch <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued documents to drain, or for ctx.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := q.wg.WaitAndRecover(); r != nil {
			q.logger.Error("worker panicked", "panic", r.String())
		}
	}()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
		return ctx.Err()
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		return nil
	}
}
