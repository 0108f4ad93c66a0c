package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-ledger/constants"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDocumentID_Filename(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "invoice-1.pdf", "%PDF-1.4 a")

	id, err := DocumentID(p, constants.IdentityFilename)
	require.NoError(t, err)
	assert.Equal(t, "file:invoice-1.pdf", id)

	id, err = DocumentID(p, "")
	require.NoError(t, err)
	assert.Equal(t, "file:invoice-1.pdf", id)
}

func TestDocumentID_ContentHashIgnoresName(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", "same bytes")
	b := writeFile(t, dir, "b.pdf", "same bytes")
	c := writeFile(t, dir, "c.pdf", "other bytes")

	idA, err := DocumentID(a, constants.IdentityContentHash)
	require.NoError(t, err)
	idB, err := DocumentID(b, constants.IdentityContentHash)
	require.NoError(t, err)
	idC, err := DocumentID(c, constants.IdentityContentHash)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(idA, "sha256:"))
	assert.Len(t, idA, len("sha256:")+64)
	assert.Equal(t, idA, idB)
	assert.NotEqual(t, idA, idC)
}

func TestDocumentID_UnknownStrategy(t *testing.T) {
	_, err := DocumentID("/x.pdf", constants.IdentityStrategy("bogus"))
	assert.Error(t, err)
}

func TestNewDocument(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "Factura.PDF", "%PDF-1.7\n%binary")

	doc, err := NewDocument(p, constants.SourceWatchedFolder, constants.IdentityFilename)
	require.NoError(t, err)

	assert.Equal(t, "file:Factura.PDF", doc.ID)
	assert.Equal(t, "Factura.PDF", doc.Filename)
	assert.True(t, filepath.IsAbs(doc.Locator))
	assert.Equal(t, constants.SourceWatchedFolder, doc.Source)
	assert.Equal(t, "application/pdf", doc.MimeHint)
}

func TestSniffMime_FallsBackToExtension(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "photo.png", "not really a png")

	assert.Equal(t, "image/png", SniffMime(p))
}
