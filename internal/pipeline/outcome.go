package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

// Outcome is the terminal state of one document. Stage is where processing
// ended: StageDone for completed documents, the failing stage otherwise.
type Outcome struct {
	Document       entity.Document
	Kind           constants.OutcomeKind
	Stage          constants.Stage
	Classification constants.Classification
	Validation     entity.ValidationResult
	Invoice        *entity.StructuredInvoice
	Err            error
	Elapsed        time.Duration
}

// Failed reports whether the document needs manual reprocessing.
func (o Outcome) Failed() bool { return o.Kind.IsFailure() }

// Reason is a one-line explanation suitable for logs and reports.
func (o Outcome) Reason() string {
	switch {
	case o.Err != nil:
		return o.Err.Error()
	case o.Kind == constants.OutcomeDuplicateInFlight:
		return "document is already being processed"
	case o.Kind == constants.OutcomeDuplicateInLedger:
		return "document is already in the ledger"
	default:
		return o.Validation.Notes()
	}
}

// Summary counts outcomes by kind and, for persisted documents, by classification.
type Summary struct {
	Total            int
	ByKind           map[constants.OutcomeKind]int
	ByClassification map[constants.Classification]int
}

// Failures is the number of documents that need reprocessing.
func (s Summary) Failures() int {
	return s.ByKind[constants.OutcomeExtractionFailed] + s.ByKind[constants.OutcomeStorageFailed]
}

// Collector gathers outcomes from concurrent workers.
type Collector struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Add(o Outcome) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
}

// Outcomes returns a copy ordered by filename.
func (c *Collector) Outcomes() []Outcome {
	c.mu.Lock()
	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Document.Filename < out[j].Document.Filename })
	return out
}

func (c *Collector) Summary() Summary {
	s := Summary{
		ByKind:           map[constants.OutcomeKind]int{},
		ByClassification: map[constants.Classification]int{},
	}
	for _, o := range c.Outcomes() {
		s.Total++
		s.ByKind[o.Kind]++
		if o.Kind == constants.OutcomeSaved {
			s.ByClassification[o.Classification]++
		}
	}
	return s
}
