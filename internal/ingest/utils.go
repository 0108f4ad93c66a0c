package ingest

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/joseph-ayodele/invoice-ledger/constants"
)

// AllowedExt checks ext against exts, falling back to the default allow-list when exts is empty.
func AllowedExt(ext string, exts map[string]struct{}) bool {
	if len(exts) == 0 {
		exts = constants.AllowedExtensions
	}
	_, ok := exts[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// IsTemporary reports editor/office lock files such as "~$invoice.pdf".
func IsTemporary(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "~")
}

// Qualifies is the watch filter: not hidden, not temporary, allowed extension (case-insensitive).
func Qualifies(path string, exts map[string]struct{}) bool {
	if IsHidden(path) || IsTemporary(path) {
		return false
	}
	return AllowedExt(filepath.Ext(path), exts)
}

func extList(exts map[string]struct{}) []string {
	if len(exts) == 0 {
		exts = constants.AllowedExtensions
	}
	keys := lo.Keys(exts)
	sort.Strings(keys)
	return keys
}
