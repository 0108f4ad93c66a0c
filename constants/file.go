package constants

import "strings"

// AllowedExtensions holds the default allowed file extensions for invoice ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// ImageExtensions are sent to the extractor as inline images; everything else goes as a document hint.
var ImageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// IsImageExt reports whether ext (with or without dot) is an inline image format.
func IsImageExt(ext string) bool {
	_, ok := ImageExtensions[NormalizeExt(ext)]
	return ok
}

// ParseExtensions turns "pdf, .JPG,png" into a normalized allow-list.
// An empty input yields the default AllowedExtensions.
func ParseExtensions(csv string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range strings.Split(csv, ",") {
		if e = NormalizeExt(e); e != "" {
			out[e] = struct{}{}
		}
	}
	if len(out) == 0 {
		for e := range AllowedExtensions {
			out[e] = struct{}{}
		}
	}
	return out
}
