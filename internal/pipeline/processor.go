// Package pipeline drives documents through dedup, extraction, validation and the ledger.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/dedup"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
	"github.com/joseph-ayodele/invoice-ledger/internal/extract"
	"github.com/joseph-ayodele/invoice-ledger/internal/logging"
	"github.com/joseph-ayodele/invoice-ledger/internal/repository"
	"github.com/joseph-ayodele/invoice-ledger/internal/validate"
)

// RowExporter receives every newly saved invoice, e.g. to append a CSV row.
type RowExporter interface {
	Append(ctx context.Context, documentID string, inv entity.StructuredInvoice) error
}

// Processor runs the per-document state machine.
type Processor struct {
	dedup     *dedup.Deduplicator
	gateway   *extract.Gateway
	ledger    repository.Ledger
	exporter  RowExporter
	skipKnown bool
	logger    *slog.Logger
}

type ProcessorOption func(*Processor)

// WithExporter appends saved invoices to e. Export failures are logged only.
func WithExporter(e RowExporter) ProcessorOption {
	return func(p *Processor) { p.exporter = e }
}

// WithSkipKnown checks the ledger before extraction so re-delivered documents
// (for example by a reconciliation scan) don't cost an extractor call.
func WithSkipKnown(skip bool) ProcessorOption {
	return func(p *Processor) { p.skipKnown = skip }
}

func NewProcessor(d *dedup.Deduplicator, g *extract.Gateway, l repository.Ledger, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{dedup: d, gateway: g, ledger: l, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process never returns an error: every failure becomes the Outcome of this
// document so callers can move on to the next one.
func (p *Processor) Process(ctx context.Context, doc entity.Document) (out Outcome) {
	start := time.Now()
	ctx = common.WithDocumentID(ctx, doc.ID)
	out = Outcome{Document: doc, Stage: constants.StageDiscovered}

	defer func() {
		if r := recover(); r != nil {
			out.Kind = constants.OutcomeExtractionFailed
			if out.Stage == constants.StagePersisting {
				out.Kind = constants.OutcomeStorageFailed
			}
			out.Err = fmt.Errorf("panic during %s: %v", out.Stage, r)
		}
		out.Elapsed = time.Since(start)
		p.report(ctx, out)
	}()

	out.Stage = constants.StageAcquiring
	release, ok := p.dedup.Acquire(doc.Locator)
	if !ok {
		out.Stage = constants.StageDone
		out.Kind = constants.OutcomeDuplicateInFlight
		return out
	}
	defer release()

	if p.skipKnown {
		known, err := p.ledger.Exists(ctx, doc.ID)
		if err != nil {
			// persist still enforces uniqueness, so a failed lookup only costs an extraction
			p.logger.Warn("pipeline.exists_check_failed", "document_id", doc.ID, "error", err)
		}
		if known {
			out.Stage = constants.StageDone
			out.Kind = constants.OutcomeDuplicateInLedger
			return out
		}
	}

	out.Stage = constants.StageExtracting
	res := p.gateway.Extract(ctx, doc)
	inv, ok := res.Invoice()
	if !ok {
		out.Kind = constants.OutcomeExtractionFailed
		out.Err = res.Err()
		return out
	}
	out.Invoice = &inv

	out.Stage = constants.StageValidating
	out.Validation = validate.Validate(inv)
	out.Classification = out.Validation.Classification

	out.Stage = constants.StagePersisting
	persisted, err := p.ledger.Persist(ctx, doc.ID, inv, out.Classification, out.Validation.Notes())
	if err != nil {
		out.Kind = constants.OutcomeStorageFailed
		out.Err = err
		return out
	}

	out.Stage = constants.StageDone
	switch persisted {
	case constants.PersistSaved:
		out.Kind = constants.OutcomeSaved
		p.export(ctx, doc, inv)
	default:
		out.Kind = constants.OutcomeDuplicateInLedger
	}
	return out
}

func (p *Processor) export(ctx context.Context, doc entity.Document, inv entity.StructuredInvoice) {
	if p.exporter == nil {
		return
	}
	if err := p.exporter.Append(ctx, doc.ID, inv); err != nil {
		p.logger.Warn("pipeline.export.failed", "document_id", doc.ID, "error", err)
	}
}

func (p *Processor) report(ctx context.Context, o Outcome) {
	logger := logging.FromContext(ctx, p.logger)
	attrs := []any{
		"file", o.Document.Filename,
		"locator", o.Document.Locator,
		"source", o.Document.Source,
		"outcome", o.Kind,
		"stage", o.Stage,
		"elapsed_ms", o.Elapsed.Milliseconds(),
	}
	switch {
	case o.Failed():
		logger.Error("pipeline.document.failed", append(attrs, "reason", o.Reason())...)
	case o.Kind == constants.OutcomeSaved:
		logger.Info("pipeline.document.saved", append(attrs,
			"classification", o.Classification,
			"errors", len(o.Validation.Errors),
			"warnings", len(o.Validation.Warnings),
			"notes", o.Validation.Notes(),
		)...)
	default:
		logger.Info("pipeline.document.skipped", append(attrs, "reason", o.Reason())...)
	}
}
