package constants

// Classification is the validation verdict stored with every ledger record.
type Classification string

// Stable values (store these exact strings in DB).
const (
	ClassificationOK     Classification = "OK"     // auto-accept
	ClassificationReview Classification = "REVIEW" // human check
	ClassificationError  Classification = "ERROR"  // reject
)

// PersistOutcome is what the ledger reports for an insert attempt.
type PersistOutcome string

const (
	PersistSaved     PersistOutcome = "SAVED"
	PersistDuplicate PersistOutcome = "DUPLICATE"
)

// Stage is a step of the per-document state machine.
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageAcquiring  Stage = "acquiring"
	StageExtracting Stage = "extracting"
	StageValidating Stage = "validating"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
)

// OutcomeKind is the terminal result reported for a processed document.
type OutcomeKind string

const (
	OutcomeSaved             OutcomeKind = "saved"
	OutcomeDuplicateInFlight OutcomeKind = "duplicate-in-flight"
	OutcomeDuplicateInLedger OutcomeKind = "duplicate-in-ledger"
	OutcomeExtractionFailed  OutcomeKind = "extraction-failed"
	OutcomeStorageFailed     OutcomeKind = "storage-failed"
)

// IsFailure reports whether the outcome needs manual reprocessing.
func (k OutcomeKind) IsFailure() bool {
	return k == OutcomeExtractionFailed || k == OutcomeStorageFailed
}
