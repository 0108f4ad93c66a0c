package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

const sniffLen = 261

// DocumentID derives the ledger key for the file at path.
// The filename strategy keys on the base name so every source agrees on it;
// content-hash keys on the SHA-256 of the bytes.
func DocumentID(path string, strategy constants.IdentityStrategy) (string, error) {
	switch strategy {
	case constants.IdentityContentHash:
		sum, err := hashFile(path)
		if err != nil {
			return "", err
		}
		return "sha256:" + sum, nil
	case constants.IdentityFilename, "":
		return "file:" + filepath.Base(path), nil
	default:
		return "", fmt.Errorf("unknown identity strategy %q", strategy)
	}
}

// NewDocument builds an immutable Document for path.
func NewDocument(path string, source constants.DocumentSource, strategy constants.IdentityStrategy) (entity.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.Document{}, fmt.Errorf("abs path: %w", err)
	}
	id, err := DocumentID(abs, strategy)
	if err != nil {
		return entity.Document{}, err
	}
	return entity.Document{
		ID:       id,
		Filename: filepath.Base(abs),
		Locator:  abs,
		Source:   source,
		MimeHint: SniffMime(abs),
	}, nil
}

// SniffMime matches the file header, falling back to the extension.
func SniffMime(path string) string {
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(f, head)
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			if kind, err := filetype.Match(head[:n]); err == nil && kind != filetype.Unknown {
				return kind.MIME.Value
			}
		}
	}
	return filetype.GetType(constants.NormalizeExt(filepath.Ext(path))).MIME.Value
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
