package entity

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-ledger/constants"
)

// ValidationResult is derived deterministically from a StructuredInvoice.
type ValidationResult struct {
	Classification constants.Classification `json:"classification"`
	Errors         []string                 `json:"errors"`
	Warnings       []string                 `json:"warnings"`
}

// Notes renders the messages stored next to the record: errors for ERROR,
// warnings for REVIEW, nothing for OK.
func (r ValidationResult) Notes() string {
	switch r.Classification {
	case constants.ClassificationError:
		return strings.Join(r.Errors, "; ")
	case constants.ClassificationReview:
		return strings.Join(r.Warnings, "; ")
	default:
		return ""
	}
}

// LedgerRecord is a persisted invoice.
type LedgerRecord struct {
	ID         int64  `json:"id"`
	DocumentID string `json:"document_id"`
	StructuredInvoice
	Classification constants.Classification `json:"classification"`
	Notes          string                   `json:"notes,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}
