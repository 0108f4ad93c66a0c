package entity

import "github.com/joseph-ayodele/invoice-ledger/constants"

// Document is one candidate input file. It is created by a source and never mutated.
type Document struct {
	ID       string                   `json:"id"`       // stable identity, the ledger key
	Filename string                   `json:"filename"` // base name
	Locator  string                   `json:"locator"`  // absolute path to the bytes
	Source   constants.DocumentSource `json:"source"`
	MimeHint string                   `json:"mime_hint,omitempty"`
}
