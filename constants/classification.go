package constants

import (
	"strings"
)

// DocumentSource tells where a document was discovered.
type DocumentSource string

const (
	SourceLocalScan     DocumentSource = "local-scan"
	SourceWatchedFolder DocumentSource = "watched-folder"
	SourceUpload        DocumentSource = "upload"
)

// IdentityStrategy selects how a document id is derived.
type IdentityStrategy string

const (
	IdentityFilename    IdentityStrategy = "filename"
	IdentityContentHash IdentityStrategy = "content-hash"
)

var allClassifications = []Classification{
	ClassificationOK,
	ClassificationReview,
	ClassificationError,
}

func ClassificationsAsStringSlice() []string {
	result := make([]string, len(allClassifications))
	for i, c := range allClassifications {
		result[i] = string(c)
	}
	return result
}

// Canonicalize maps user input (CLI flags, query params) onto a Classification.
func Canonicalize(input string) (Classification, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]Classification{
		"accepted":     ClassificationOK,
		"accept":       ClassificationOK,
		"valid":        ClassificationOK,
		"needs-review": ClassificationReview,
		"review":       ClassificationReview,
		"pending":      ClassificationReview,
		"rejected":     ClassificationError,
		"reject":       ClassificationError,
		"invalid":      ClassificationError,
	}

	if c, ok := synonyms[normalized]; ok {
		return c, true
	}

	for _, c := range allClassifications {
		if normalized == strings.ToLower(string(c)) {
			return c, true
		}
	}

	return "", false
}
