package extract

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

// Extractor turns a document into a structured invoice. Implementations are
// treated as slow and untrusted: the Gateway bounds and checks every call.
type Extractor interface {
	Extract(ctx context.Context, doc entity.Document) (entity.StructuredInvoice, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(ctx context.Context, doc entity.Document) (entity.StructuredInvoice, error)

func (f ExtractorFunc) Extract(ctx context.Context, doc entity.Document) (entity.StructuredInvoice, error) {
	return f(ctx, doc)
}

// Failure reasons carried by ExtractionError.
const (
	ReasonTimeout   = "timeout"
	ReasonCanceled  = "canceled"
	ReasonUpstream  = "upstream"
	ReasonMalformed = "malformed-response"
	ReasonPanic     = "panic"
)

// ExtractionError is any failure to obtain a usable invoice for a document.
// It matches common.ErrExtraction under errors.Is.
type ExtractionError struct {
	DocumentID string
	Reason     string
	Cause      error
}

func NewExtractionError(documentID, reason string, cause error) *ExtractionError {
	return &ExtractionError{DocumentID: documentID, Reason: reason, Cause: cause}
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed (%s) for %s: %v", e.Reason, e.DocumentID, e.Cause)
	}
	return fmt.Sprintf("extraction failed (%s) for %s", e.Reason, e.DocumentID)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

func (e *ExtractionError) Is(target error) bool { return target == common.ErrExtraction }

// Result is either an invoice or an ExtractionError, never both.
type Result struct {
	invoice entity.StructuredInvoice
	err     *ExtractionError
}

func okResult(inv entity.StructuredInvoice) Result { return Result{invoice: inv} }

func errResult(err *ExtractionError) Result { return Result{err: err} }

// OK reports whether extraction produced a usable invoice.
func (r Result) OK() bool { return r.err == nil }

// Invoice returns the invoice and true, or a zero value and false on failure.
func (r Result) Invoice() (entity.StructuredInvoice, bool) {
	if r.err != nil {
		return entity.StructuredInvoice{}, false
	}
	return r.invoice, true
}

// Err returns the failure, or nil.
func (r Result) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Reason returns the failure reason, or "".
func (r Result) Reason() string {
	if r.err == nil {
		return ""
	}
	return r.err.Reason
}
