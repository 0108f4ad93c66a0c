package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc"

	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
	"github.com/joseph-ayodele/invoice-ledger/internal/ingest"
)

// Feed forwards every document of every source into q until the sources are
// exhausted or ctx is done. All sources are opened before anything is forwarded,
// so a missing directory fails the whole call up front.
func (q *Queue) Feed(ctx context.Context, sources ...ingest.Source) error {
	chans := make([]<-chan entity.Document, 0, len(sources))
	for _, s := range sources {
		ch, err := s.Produce(ctx)
		if err != nil {
			return errors.Wrap(err, "open document source")
		}
		chans = append(chans, ch)
	}

	var wg conc.WaitGroup
	for _, ch := range chans {
		ch := ch // per-iteration copy; go.mod targets go1.21 loop semantics
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case doc, ok := <-ch:
					if !ok {
						return
					}
					if err := q.Enqueue(ctx, doc); err != nil {
						q.logger.Warn("pipeline.feed.stopped", "document_id", doc.ID, "error", err)
						return
					}
				}
			}
		})
	}
	wg.Wait()
	return nil
}

// RunScan processes a finite source to completion and returns the collected outcomes.
func RunScan(ctx context.Context, proc *Processor, src ingest.Source, opts ...Option) (*Collector, error) {
	col := NewCollector()
	q := NewQueue(proc, proc.logger, append(opts, WithBaseContext(ctx), WithOnOutcome(col.Add))...)

	err := q.Feed(ctx, src)
	if shutdownErr := q.Shutdown(context.Background()); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return col, err
}

// RunWatch feeds the watcher (and an optional reconciliation source) until ctx is
// done, then stops the watcher and drains the queue within drainTimeout.
func RunWatch(ctx context.Context, q *Queue, w *ingest.Watcher, reconcile ingest.Source, drainTimeout time.Duration) error {
	sources := []ingest.Source{w}
	if reconcile != nil {
		sources = append(sources, reconcile)
	}

	feedErr := q.Feed(ctx, sources...)

	w.Stop()
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := q.Shutdown(drainCtx); err != nil {
		return errors.Wrap(err, "drain queue")
	}
	return feedErr
}
