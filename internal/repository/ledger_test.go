package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	db     *DB
	ledger Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := Open(s.ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(s.T().TempDir(), "ledger", "test.db")}, nil)
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(s.ctx))
	s.db = db
	s.ledger = NewLedger(db, nil)
}

func (s *LedgerSuite) TearDownTest() {
	s.db.Close()
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func str(v string) *string { return &v }

func day(y int, m time.Month, dd int) *time.Time {
	t := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	return &t
}

func sampleInvoice(supplier string) entity.StructuredInvoice {
	return entity.StructuredInvoice{
		InvoiceNumber: str("F-001"),
		IssueDate:     day(2024, 3, 1),
		SupplierName:  supplier,
		SupplierTaxID: str("B12345678"),
		TaxBase:       d("100.00"),
		TaxTotal:      d("21.00"),
		GrandTotal:    d("121.00"),
		Currency:      "EUR",
		Items: []entity.LineItem{
			{Description: "Consulting", Quantity: d("2"), UnitPrice: d("40.00"), LineTotal: d("80.00")},
			{Description: "Travel", Quantity: d("1"), UnitPrice: d("20.00"), LineTotal: d("20.00")},
		},
	}
}

func (s *LedgerSuite) TestPersistTwiceIsIdempotent() {
	first, err := s.ledger.Persist(s.ctx, "file:a.pdf", sampleInvoice("ACME"), constants.ClassificationOK, "")
	s.Require().NoError(err)
	s.Equal(constants.PersistSaved, first)

	other := sampleInvoice("Impostor")
	other.Items = []entity.LineItem{{Description: "Should not land", Quantity: d("1"), UnitPrice: d("1"), LineTotal: d("1")}}
	second, err := s.ledger.Persist(s.ctx, "file:a.pdf", other, constants.ClassificationError, "x")
	s.Require().NoError(err)
	s.Equal(constants.PersistDuplicate, second)

	recs, err := s.ledger.ListAll(s.ctx, Filters{})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)

	rec := recs[0]
	s.Equal("file:a.pdf", rec.DocumentID)
	s.Equal("ACME", rec.SupplierName)
	s.Equal(constants.ClassificationOK, rec.Classification)
	s.Require().Len(rec.Items, 2)
	s.Equal("Consulting", rec.Items[0].Description)
	s.Equal("Travel", rec.Items[1].Description)
	s.True(rec.Items[0].LineTotal.Equal(d("80")))

	var items int
	s.Require().NoError(s.db.SQL().QueryRowContext(s.ctx, "SELECT COUNT(*) FROM invoice_items").Scan(&items))
	s.Equal(2, items)
}

func (s *LedgerSuite) TestConcurrentPersistSavesOnce() {
	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[constants.PersistOutcome]int{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.ledger.Persist(s.ctx, "file:race.pdf", sampleInvoice("ACME"), constants.ClassificationOK, "")
			assert.NoError(s.T(), err)
			mu.Lock()
			outcomes[out]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Equal(1, outcomes[constants.PersistSaved])
	s.Equal(callers-1, outcomes[constants.PersistDuplicate])

	recs, err := s.ledger.ListAll(s.ctx, Filters{DocumentID: "file:race.pdf"})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Len(recs[0].Items, 2)
}

func (s *LedgerSuite) TestRoundTripPreservesFields() {
	inv := entity.StructuredInvoice{
		SupplierName: "Solo",
		TaxBase:      d("50"),
		TaxTotal:     d("0"),
		GrandTotal:   d("50"),
		Currency:     "USD",
	}
	_, err := s.ledger.Persist(s.ctx, "file:solo.png", inv, constants.ClassificationReview, "invoice number is missing; invoice has no line items")
	s.Require().NoError(err)

	recs, err := s.ledger.ListAll(s.ctx, Filters{})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)

	rec := recs[0]
	s.Nil(rec.InvoiceNumber)
	s.Nil(rec.IssueDate)
	s.Nil(rec.CustomerName)
	s.Empty(rec.Items)
	s.Equal("50.00", rec.GrandTotal.StringFixed(2))
	s.Equal("USD", rec.Currency)
	s.Equal(constants.ClassificationReview, rec.Classification)
	s.Equal("invoice number is missing; invoice has no line items", rec.Notes)
	s.WithinDuration(time.Now(), rec.CreatedAt, time.Minute)
}

func (s *LedgerSuite) TestListAllOrderAndFilters() {
	l := s.ledger.(*ledgerRepository)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	a := sampleInvoice("ACME Supplies")
	a.IssueDate = day(2024, 1, 10)
	b := sampleInvoice("Beta Corp")
	b.IssueDate = day(2024, 2, 10)
	c := sampleInvoice("acme logistics")
	c.IssueDate = day(2024, 3, 10)

	_, err := s.ledger.Persist(s.ctx, "file:c.pdf", c, constants.ClassificationError, "")
	s.Require().NoError(err)
	_, err = s.ledger.Persist(s.ctx, "file:a.pdf", a, constants.ClassificationOK, "")
	s.Require().NoError(err)
	_, err = s.ledger.Persist(s.ctx, "file:b.pdf", b, constants.ClassificationReview, "")
	s.Require().NoError(err)

	all, err := s.ledger.ListAll(s.ctx, Filters{})
	s.Require().NoError(err)
	s.Equal([]string{"file:c.pdf", "file:a.pdf", "file:b.pdf"}, docIDs(all))

	bySupplier, err := s.ledger.ListAll(s.ctx, Filters{Supplier: "acme"})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"file:a.pdf", "file:c.pdf"}, docIDs(bySupplier))

	byClass, err := s.ledger.ListAll(s.ctx, Filters{Classification: constants.ClassificationReview})
	s.Require().NoError(err)
	s.Equal([]string{"file:b.pdf"}, docIDs(byClass))

	byDate, err := s.ledger.ListAll(s.ctx, Filters{From: day(2024, 2, 1), To: day(2024, 3, 10)})
	s.Require().NoError(err)
	s.Equal([]string{"file:c.pdf", "file:b.pdf"}, docIDs(byDate))

	limited, err := s.ledger.ListAll(s.ctx, Filters{Limit: 1})
	s.Require().NoError(err)
	s.Equal([]string{"file:c.pdf"}, docIDs(limited))

	counts, err := s.ledger.CountByClassification(s.ctx)
	s.Require().NoError(err)
	s.Equal(map[constants.Classification]int{
		constants.ClassificationOK:     1,
		constants.ClassificationReview: 1,
		constants.ClassificationError:  1,
	}, counts)
}

func (s *LedgerSuite) TestExists() {
	ok, err := s.ledger.Exists(s.ctx, "file:x.pdf")
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.ledger.Persist(s.ctx, "file:x.pdf", sampleInvoice("ACME"), constants.ClassificationOK, "")
	s.Require().NoError(err)

	ok, err = s.ledger.Exists(s.ctx, "file:x.pdf")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *LedgerSuite) TestEmptyDocumentIDIsRejected() {
	_, err := s.ledger.Persist(s.ctx, " ", sampleInvoice("ACME"), constants.ClassificationOK, "")
	s.Require().Error(err)
	s.ErrorIs(err, common.ErrInvalidInput)
}

func (s *LedgerSuite) TestClosedStoreIsStorageError() {
	s.db.Close()

	out, err := s.ledger.Persist(s.ctx, "file:y.pdf", sampleInvoice("ACME"), constants.ClassificationOK, "")
	s.Require().Error(err)
	s.Empty(out)
	s.ErrorIs(err, common.ErrStorage)

	var serr *StorageError
	s.Require().ErrorAs(err, &serr)
	s.NotErrorIs(err, common.ErrInvalidInput)

	_, err = s.ledger.Exists(s.ctx, "file:y.pdf")
	s.ErrorIs(err, common.ErrStorage)
}

func (s *LedgerSuite) TestMigrateIsRepeatable() {
	s.NoError(s.db.Migrate(s.ctx))
}

func (s *LedgerSuite) TestHealthCheck() {
	s.NoError(s.db.HealthCheck(s.ctx, time.Second))
}

func docIDs(recs []*entity.LedgerRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.DocumentID)
	}
	return out
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfig)
}

func TestIsUniqueViolation_PlainError(t *testing.T) {
	assert.False(t, isUniqueViolation(assert.AnError))
}

func TestWithSQLitePragmas(t *testing.T) {
	const both = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	cases := []struct{ in, want string }{
		{in: "file:a.db", want: "file:a.db?" + both},
		{in: "file:a.db?_pragma=journal_mode(WAL)", want: "file:a.db?_pragma=journal_mode(WAL)&" + both},
		{in: "file:a.db?_pragma=busy_timeout(100)", want: "file:a.db?_pragma=busy_timeout(100)&_pragma=foreign_keys(1)"},
		{in: "file:a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(1)", want: "file:a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(1)"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, withSQLitePragmas(c.in), c.in)
	}
}

func TestOpen_SQLiteKeepsForeignKeysWithCallerQuery(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wal.db")
	db, err := Open(ctx, Config{Driver: "sqlite3", DSN: path + "?_pragma=journal_mode(WAL)"}, nil)
	require.NoError(t, err)
	defer db.Close()

	var fk, timeout int
	require.NoError(t, db.SQL().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	require.NoError(t, db.SQL().QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 1, fk)
	assert.Equal(t, 5000, timeout)
}
