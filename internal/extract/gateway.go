package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
	"github.com/joseph-ayodele/invoice-ledger/internal/logging"
)

// Gateway calls an Extractor under a deadline and turns every failure mode
// (error, timeout, panic, contract violation) into an ExtractionError.
type Gateway struct {
	extractor Extractor
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGateway wraps ex. A non-positive timeout disables the deadline.
func NewGateway(ex Extractor, timeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{extractor: ex, timeout: timeout, logger: logger}
}

type reply struct {
	inv entity.StructuredInvoice
	err error
}

// Extract never blocks past the deadline; a late extractor is abandoned and its
// result discarded.
func (g *Gateway) Extract(ctx context.Context, doc entity.Document) Result {
	start := time.Now()
	ctx = common.WithDocumentID(ctx, doc.ID)
	logger := logging.FromContext(ctx, g.logger)
	ctx, cancel := common.WithTimeout(ctx, g.timeout)
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: NewExtractionError(doc.ID, ReasonPanic, fmt.Errorf("extractor panic: %v", r))}
			}
		}()
		inv, err := g.extractor.Extract(ctx, doc)
		ch <- reply{inv: inv, err: err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-ctx.Done():
		r = reply{err: ctx.Err()}
	}

	if r.err != nil {
		xerr := g.classify(doc, r.err)
		logger.Warn("extract.failed",
			"reason", xerr.Reason,
			"error", xerr.Cause,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return errResult(xerr)
	}

	if err := common.ValidateStruct(r.inv); err != nil {
		logger.Warn("extract.contract_violation",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return errResult(NewExtractionError(doc.ID, ReasonMalformed, err))
	}

	logger.Info("extract.ok",
		"supplier", r.inv.SupplierName,
		"grand_total", r.inv.GrandTotal.StringFixed(2),
		"currency", r.inv.Currency,
		"items", len(r.inv.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return okResult(r.inv)
}

func (g *Gateway) classify(doc entity.Document, err error) *ExtractionError {
	var xerr *ExtractionError
	if errors.As(err, &xerr) {
		if xerr.DocumentID == "" {
			xerr.DocumentID = doc.ID
		}
		return xerr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewExtractionError(doc.ID, ReasonTimeout, err)
	case errors.Is(err, context.Canceled):
		return NewExtractionError(doc.ID, ReasonCanceled, err)
	default:
		return NewExtractionError(doc.ID, ReasonUpstream, err)
	}
}
