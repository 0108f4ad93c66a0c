package ingest

import (
	"context"

	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

// Source produces candidate documents. A scan source yields a finite sequence and
// closes the channel; a watch source keeps the channel open until it is stopped.
type Source interface {
	Produce(ctx context.Context) (<-chan entity.Document, error)
}

// DirStats summarizes one directory listing.
type DirStats struct {
	Scanned uint32 // entries seen
	Matched uint32 // entries that passed the filters
	Skipped uint32 // hidden, temporary, directories or disallowed extensions
	Failed  uint32 // entries that could not be turned into a Document
}
