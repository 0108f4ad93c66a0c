package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

const testSettle = 100 * time.Millisecond

func startTestWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := StartWatcher(context.Background(), WatchConfig{Dir: dir, SettleDelay: testSettle}, nil)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w
}

func collect(w *Watcher, quiet time.Duration) []entity.Document {
	var docs []entity.Document
	for {
		select {
		case d, ok := <-w.Documents():
			if !ok {
				return docs
			}
			docs = append(docs, d)
		case <-time.After(quiet):
			return docs
		}
	}
}

func TestWatcher_FiltersEvents(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir)

	for _, name := range []string{".DS_Store", "~tmp.pdf", "report.docx", "invoice.PDF"} {
		writeFile(t, dir, name, "%PDF-1.4")
	}

	docs := collect(w, 5*testSettle)
	require.Len(t, docs, 1)
	assert.Equal(t, "invoice.PDF", docs[0].Filename)
	assert.Equal(t, "file:invoice.PDF", docs[0].ID)
	assert.Equal(t, constants.SourceWatchedFolder, docs[0].Source)
}

func TestWatcher_DropsFilesThatVanish(t *testing.T) {
	dir := t.TempDir()
	w, err := StartWatcher(context.Background(), WatchConfig{Dir: dir, SettleDelay: 300 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Stop()

	gone := writeFile(t, dir, "gone.pdf", "x")
	require.NoError(t, os.Remove(gone))
	writeFile(t, dir, "kept.pdf", "x")

	docs := collect(w, time.Second)
	require.Len(t, docs, 1)
	assert.Equal(t, "kept.pdf", docs[0].Filename)
}

func TestWatcher_StopClosesChannel(t *testing.T) {
	dir := t.TempDir()
	w, err := StartWatcher(context.Background(), WatchConfig{Dir: dir, SettleDelay: time.Hour}, nil)
	require.NoError(t, err)

	writeFile(t, dir, "pending.pdf", "x")
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	_, ok := <-w.Documents()
	assert.False(t, ok)
	w.Stop() // idempotent
}

func TestWatcher_MissingDirectory(t *testing.T) {
	_, err := StartWatcher(context.Background(), WatchConfig{Dir: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.Error(t, err)
}

func TestWatcher_PathIsFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "file.pdf", "x")
	_, err := StartWatcher(context.Background(), WatchConfig{Dir: p}, nil)
	assert.Error(t, err)
}

func TestWatcher_NoDeliveryAfterShutdownBegan(t *testing.T) {
	w := &Watcher{out: make(chan entity.Document, 64)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 64; i++ {
		assert.False(t, w.deliver(ctx, entity.Document{ID: "file:late.pdf"}))
	}
	assert.Empty(t, w.out)

	assert.True(t, w.deliver(context.Background(), entity.Document{ID: "file:ok.pdf"}))
	assert.Len(t, w.out, 1)
}
