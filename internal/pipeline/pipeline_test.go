package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/dedup"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
	"github.com/joseph-ayodele/invoice-ledger/internal/extract"
	"github.com/joseph-ayodele/invoice-ledger/internal/ingest"
	"github.com/joseph-ayodele/invoice-ledger/internal/repository"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func str(v string) *string { return &v }

func cleanInvoice() entity.StructuredInvoice {
	issued := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return entity.StructuredInvoice{
		InvoiceNumber: str("F-1"),
		IssueDate:     &issued,
		SupplierName:  "ACME",
		TaxBase:       d("100.00"),
		TaxTotal:      d("21.00"),
		GrandTotal:    d("121.00"),
		Currency:      "EUR",
		Items:         []entity.LineItem{{Description: "Service", Quantity: d("1"), UnitPrice: d("100"), LineTotal: d("100")}},
	}
}

// fakeExtractor answers by filename and counts calls.
type fakeExtractor struct {
	calls    atomic.Int32
	invoices map[string]entity.StructuredInvoice
	failures map[string]error
	fallback entity.StructuredInvoice
	gate     chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, doc entity.Document) (entity.StructuredInvoice, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return entity.StructuredInvoice{}, ctx.Err()
		}
	}
	if err, ok := f.failures[doc.Filename]; ok {
		return entity.StructuredInvoice{}, err
	}
	if inv, ok := f.invoices[doc.Filename]; ok {
		return inv, nil
	}
	return f.fallback, nil
}

type recordingExporter struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (r *recordingExporter) Append(_ context.Context, id string, _ entity.StructuredInvoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("disk full")
	}
	r.ids = append(r.ids, id)
	return nil
}

type failingLedger struct{ repository.Ledger }

func (failingLedger) Persist(context.Context, string, entity.StructuredInvoice, constants.Classification, string) (constants.PersistOutcome, error) {
	return "", &repository.StorageError{Op: "insert invoice", Cause: errors.New("disk I/O error")}
}

func openLedger(t *testing.T, path string) (*repository.DB, repository.Ledger) {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.Config{Driver: repository.DriverSQLite, DSN: path}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(db.Close)
	return db, repository.NewLedger(db, nil)
}

func newDoc(t *testing.T, dir, name string) entity.Document {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o644))
	doc, err := ingest.NewDocument(p, constants.SourceLocalScan, constants.IdentityFilename)
	require.NoError(t, err)
	return doc
}

func newProcessor(ex extract.Extractor, ledger repository.Ledger, opts ...ProcessorOption) (*Processor, *dedup.Deduplicator) {
	dd := dedup.New()
	return NewProcessor(dd, extract.NewGateway(ex, time.Second, nil), ledger, nil, opts...), dd
}

func TestProcess_SavedOK(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(dir, "l.db"))
	exp := &recordingExporter{}
	proc, dd := newProcessor(&fakeExtractor{fallback: cleanInvoice()}, ledger, WithExporter(exp))

	out := proc.Process(context.Background(), newDoc(t, dir, "a.pdf"))

	assert.Equal(t, constants.OutcomeSaved, out.Kind)
	assert.Equal(t, constants.StageDone, out.Stage)
	assert.Equal(t, constants.ClassificationOK, out.Classification)
	assert.NoError(t, out.Err)
	assert.Zero(t, dd.InFlight())
	assert.Equal(t, []string{"file:a.pdf"}, exp.ids)

	recs, err := ledger.ListAll(context.Background(), repository.Filters{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "file:a.pdf", recs[0].DocumentID)
}

func TestProcess_ReviewEndToEnd(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(dir, "l.db"))
	issued := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := entity.StructuredInvoice{
		IssueDate:    &issued,
		SupplierName: "ACME",
		TaxBase:      d("50"),
		TaxTotal:     d("0"),
		GrandTotal:   d("50"),
		Currency:     "EUR",
	}
	proc, _ := newProcessor(&fakeExtractor{fallback: inv}, ledger)

	out := proc.Process(context.Background(), newDoc(t, dir, "r.pdf"))

	assert.Equal(t, constants.OutcomeSaved, out.Kind)
	assert.Equal(t, constants.ClassificationReview, out.Classification)
	assert.Empty(t, out.Validation.Errors)
	assert.Len(t, out.Validation.Warnings, 2)

	recs, err := ledger.ListAll(context.Background(), repository.Filters{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, constants.ClassificationReview, recs[0].Classification)
	assert.Equal(t, "invoice number is missing; invoice has no line items", recs[0].Notes)
}

func TestProcess_ErrorClassificationIsStillPersisted(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(dir, "l.db"))
	inv := cleanInvoice()
	inv.GrandTotal = d("121.06")
	proc, _ := newProcessor(&fakeExtractor{fallback: inv}, ledger)

	out := proc.Process(context.Background(), newDoc(t, dir, "e.pdf"))

	assert.Equal(t, constants.OutcomeSaved, out.Kind)
	assert.Equal(t, constants.ClassificationError, out.Classification)
	assert.Len(t, out.Validation.Errors, 1)
}

func TestProcess_CrashRecoveryDoesNotDuplicate(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "l.db")
	doc := newDoc(t, dir, "once.pdf")

	db1, ledger1 := openLedger(t, dbPath)
	first, _ := newProcessor(&fakeExtractor{fallback: cleanInvoice()}, ledger1)
	require.Equal(t, constants.OutcomeSaved, first.Process(context.Background(), doc).Kind)
	db1.Close()

	// fresh process: new deduplicator, same durable store, same document re-delivered by a scan
	_, ledger2 := openLedger(t, dbPath)
	ex := &fakeExtractor{fallback: cleanInvoice()}
	second, _ := newProcessor(ex, ledger2)
	out := second.Process(context.Background(), doc)
	assert.Equal(t, constants.OutcomeDuplicateInLedger, out.Kind)
	assert.Equal(t, int32(1), ex.calls.Load())

	skipping, _ := newProcessor(ex, ledger2, WithSkipKnown(true))
	out = skipping.Process(context.Background(), doc)
	assert.Equal(t, constants.OutcomeDuplicateInLedger, out.Kind)
	assert.Equal(t, int32(1), ex.calls.Load(), "known documents are not extracted again")

	recs, err := ledger2.ListAll(context.Background(), repository.Filters{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestProcess_DuplicateInFlight(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(dir, "l.db"))
	ex := &fakeExtractor{fallback: cleanInvoice()}
	proc, dd := newProcessor(ex, ledger)
	doc := newDoc(t, dir, "busy.pdf")

	require.True(t, dd.TryAcquire(doc.Locator))
	out := proc.Process(context.Background(), doc)

	assert.Equal(t, constants.OutcomeDuplicateInFlight, out.Kind)
	assert.Zero(t, ex.calls.Load())
	assert.Equal(t, 1, dd.InFlight(), "a skipped document does not release someone else's hold")
}

func TestProcess_ConcurrentSameDocumentExtractsOnce(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(dir, "l.db"))
	ex := &fakeExtractor{fallback: cleanInvoice(), gate: make(chan struct{})}
	proc, _ := newProcessor(ex, ledger)
	doc := newDoc(t, dir, "dup.pdf")

	firstDone := make(chan Outcome, 1)
	go func() { firstDone <- proc.Process(context.Background(), doc) }()
	require.Eventually(t, func() bool { return ex.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := proc.Process(context.Background(), doc)
	assert.Equal(t, constants.OutcomeDuplicateInFlight, second.Kind)

	close(ex.gate)
	assert.Equal(t, constants.OutcomeSaved, (<-firstDone).Kind)
}

func TestProcess_ExtractionFailure(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(dir, "l.db"))
	proc, dd := newProcessor(&fakeExtractor{failures: map[string]error{"bad.pdf": errors.New("503 from upstream")}}, ledger)

	out := proc.Process(context.Background(), newDoc(t, dir, "bad.pdf"))

	assert.Equal(t, constants.OutcomeExtractionFailed, out.Kind)
	assert.Equal(t, constants.StageExtracting, out.Stage)
	assert.True(t, out.Failed())
	assert.ErrorIs(t, out.Err, common.ErrExtraction)
	assert.Contains(t, out.Reason(), "503")
	assert.Zero(t, dd.InFlight())
}

func TestProcess_StorageFailure(t *testing.T) {
	dir := t.TempDir()
	exp := &recordingExporter{}
	proc, dd := newProcessor(&fakeExtractor{fallback: cleanInvoice()}, failingLedger{}, WithExporter(exp))

	out := proc.Process(context.Background(), newDoc(t, dir, "s.pdf"))

	assert.Equal(t, constants.OutcomeStorageFailed, out.Kind)
	assert.Equal(t, constants.StagePersisting, out.Stage)
	assert.ErrorIs(t, out.Err, common.ErrStorage)
	assert.NotErrorIs(t, out.Err, common.ErrExtraction)
	assert.Empty(t, exp.ids)
	assert.Zero(t, dd.InFlight())
}

func TestProcess_ExportFailureDoesNotChangeOutcome(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(dir, "l.db"))
	proc, _ := newProcessor(&fakeExtractor{fallback: cleanInvoice()}, ledger, WithExporter(&recordingExporter{fail: true}))

	out := proc.Process(context.Background(), newDoc(t, dir, "x.pdf"))
	assert.Equal(t, constants.OutcomeSaved, out.Kind)
}

func TestRunScan_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(t.TempDir(), "l.db"))
	for _, name := range []string{"a.pdf", "bad.pdf", "c.png", "notes.txt"} {
		newDoc(t, dir, name)
	}
	ex := &fakeExtractor{
		fallback: cleanInvoice(),
		failures: map[string]error{"bad.pdf": errors.New("timeout talking to model")},
	}
	proc, _ := newProcessor(ex, ledger)
	scanner := ingest.NewScanner(ingest.ScanConfig{Dir: dir, SkipHidden: true}, nil)

	col, err := RunScan(context.Background(), proc, scanner, WithWorkers(2))
	require.NoError(t, err)

	outs := col.Outcomes()
	require.Len(t, outs, 3)
	assert.Equal(t, "a.pdf", outs[0].Document.Filename)
	assert.Equal(t, constants.OutcomeSaved, outs[0].Kind)
	assert.Equal(t, constants.OutcomeExtractionFailed, outs[1].Kind)
	assert.Equal(t, constants.OutcomeSaved, outs[2].Kind)

	sum := col.Summary()
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Failures())
	assert.Equal(t, 2, sum.ByClassification[constants.ClassificationOK])
}

func TestRunScan_MissingDirectoryIsFatal(t *testing.T) {
	_, ledger := openLedger(t, filepath.Join(t.TempDir(), "l.db"))
	proc, _ := newProcessor(&fakeExtractor{}, ledger)
	scanner := ingest.NewScanner(ingest.ScanConfig{Dir: filepath.Join(t.TempDir(), "missing")}, nil)

	_, err := RunScan(context.Background(), proc, scanner)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRunWatch_ProcessesNewFilesAndStops(t *testing.T) {
	dir := t.TempDir()
	_, ledger := openLedger(t, filepath.Join(t.TempDir(), "l.db"))
	newDoc(t, dir, "before.pdf")

	proc, _ := newProcessor(&fakeExtractor{fallback: cleanInvoice()}, ledger, WithSkipKnown(true))
	col := NewCollector()
	q := NewQueue(proc, nil, WithWorkers(2), WithOnOutcome(col.Add))

	ctx, cancel := context.WithCancel(context.Background())
	w, err := ingest.StartWatcher(ctx, ingest.WatchConfig{Dir: dir, SettleDelay: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	reconcile := ingest.NewScanner(ingest.ScanConfig{Dir: dir, SkipHidden: true, Source: constants.SourceWatchedFolder}, nil)

	done := make(chan error, 1)
	go func() { done <- RunWatch(ctx, q, w, reconcile, 5*time.Second) }()

	require.Eventually(t, func() bool { return len(col.Outcomes()) == 1 }, 3*time.Second, 10*time.Millisecond)
	newDoc(t, dir, "after.pdf")
	require.Eventually(t, func() bool { return len(col.Outcomes()) == 2 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunWatch did not return after cancel")
	}

	recs, err := ledger.ListAll(context.Background(), repository.Filters{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
