package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

const (
	tableInvoices = "invoices"
	tableItems    = "invoice_items"

	dateLayout = "2006-01-02"
	// fixed width so lexical order equals time order in SQLite TEXT columns
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

var invoiceColumns = []string{
	"id", "document_id", "invoice_number", "issue_date", "supplier_name", "supplier_tax_id",
	"customer_name", "tax_base", "tax_total", "grand_total", "currency", "status",
	"validation_notes", "created_at",
}

var itemColumns = []string{"invoice_id", "position", "description", "quantity", "unit_price", "line_total"}

// Filters narrows ListAll. Zero values mean "no filter".
type Filters struct {
	Classification constants.Classification
	Supplier       string     // case-insensitive substring
	From           *time.Time // issue date, inclusive
	To             *time.Time // issue date, inclusive
	DocumentID     string
	Limit          int
}

// Ledger is the durable, idempotent invoice store keyed by document id.
type Ledger interface {
	// Persist inserts the invoice and its items in one transaction. A document id
	// that is already stored yields PersistDuplicate and a nil error; any other
	// failure is a *StorageError.
	Persist(ctx context.Context, documentID string, inv entity.StructuredInvoice, class constants.Classification, notes string) (constants.PersistOutcome, error)
	Exists(ctx context.Context, documentID string) (bool, error)
	// ListAll returns records ordered by created_at, then id, with their items in document order.
	ListAll(ctx context.Context, f Filters) ([]*entity.LedgerRecord, error)
	CountByClassification(ctx context.Context) (map[constants.Classification]int, error)
}

type ledgerRepository struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewLedger(db *DB, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *ledgerRepository) Persist(ctx context.Context, documentID string, inv entity.StructuredInvoice, class constants.Classification, notes string) (constants.PersistOutcome, error) {
	if strings.TrimSpace(documentID) == "" {
		return "", common.Mark(errors.New("document id is required"), common.ErrInvalidInput)
	}
	start := time.Now()

	tx, err := r.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("ledger.persist.begin_failed", "document_id", documentID, "error", err)
		return "", &StorageError{Op: "begin", Cause: err}
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Warn("ledger.persist.rollback_failed", "document_id", documentID, "error", rbErr)
			}
		}
	}()

	invoiceID, err := r.insertHeader(ctx, tx, documentID, inv, class, notes)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Info("ledger.persist.duplicate",
				"document_id", documentID,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return constants.PersistDuplicate, nil
		}
		r.logger.Error("ledger.persist.insert_failed", "document_id", documentID, "error", err)
		return "", &StorageError{Op: "insert invoice", Cause: err}
	}

	if err := r.insertItems(ctx, tx, invoiceID, inv.Items); err != nil {
		r.logger.Error("ledger.persist.items_failed", "document_id", documentID, "error", err)
		return "", &StorageError{Op: "insert items", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return constants.PersistDuplicate, nil
		}
		r.logger.Error("ledger.persist.commit_failed", "document_id", documentID, "error", err)
		return "", &StorageError{Op: "commit", Cause: err}
	}
	committed = true

	r.logger.Info("ledger.persist.saved",
		"document_id", documentID,
		"invoice_id", invoiceID,
		"status", class,
		"items", len(inv.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return constants.PersistSaved, nil
}

func (r *ledgerRepository) insertHeader(ctx context.Context, tx *sql.Tx, documentID string, inv entity.StructuredInvoice, class constants.Classification, notes string) (int64, error) {
	var issueDate any
	if inv.IssueDate != nil {
		issueDate = r.dateArg(*inv.IssueDate)
	}
	ins := r.db.builder().Insert(tableInvoices).
		Columns(invoiceColumns[1:]...).
		Values(
			documentID,
			nullable(inv.InvoiceNumber),
			issueDate,
			inv.SupplierName,
			nullable(inv.SupplierTaxID),
			nullable(inv.CustomerName),
			inv.TaxBase.StringFixed(2),
			inv.TaxTotal.StringFixed(2),
			inv.GrandTotal.StringFixed(2),
			inv.Currency,
			string(class),
			notes,
			r.timeArg(r.now()),
		)

	if r.db.postgres() {
		query, args := ins.Returning("id").Query()
		var id int64
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args := ins.Query()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *ledgerRepository) insertItems(ctx context.Context, tx *sql.Tx, invoiceID int64, items []entity.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	ins := r.db.builder().Insert(tableItems).Columns(itemColumns...)
	for i, it := range items {
		ins = ins.Values(invoiceID, i, it.Description, it.Quantity.String(), it.UnitPrice.StringFixed(2), it.LineTotal.StringFixed(2))
	}
	query, args := ins.Query()
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (r *ledgerRepository) Exists(ctx context.Context, documentID string) (bool, error) {
	b := r.db.builder()
	query, args := b.Select("id").
		From(b.Table(tableInvoices)).
		Where(entsql.EQ("document_id", documentID)).
		Limit(1).
		Query()

	var id int64
	err := r.db.SQL().QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		r.logger.Error("ledger.exists.failed", "document_id", documentID, "error", err)
		return false, &StorageError{Op: "exists", Cause: err}
	}
	return true, nil
}

func (r *ledgerRepository) ListAll(ctx context.Context, f Filters) ([]*entity.LedgerRecord, error) {
	b := r.db.builder()
	sel := b.Select(invoiceColumns...).From(b.Table(tableInvoices))
	if preds := r.predicates(f); len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	sel = sel.OrderBy("created_at", "id")
	if f.Limit > 0 {
		sel = sel.Limit(f.Limit)
	}

	records, err := r.queryHeaders(ctx, sel)
	if err != nil {
		r.logger.Error("ledger.list.failed", "error", err)
		return nil, &StorageError{Op: "list invoices", Cause: err}
	}
	if len(records) == 0 {
		return records, nil
	}

	if err := r.loadItems(ctx, records); err != nil {
		r.logger.Error("ledger.list.items_failed", "error", err)
		return nil, &StorageError{Op: "list items", Cause: err}
	}
	return records, nil
}

func (r *ledgerRepository) predicates(f Filters) []*entsql.Predicate {
	var preds []*entsql.Predicate
	if f.Classification != "" {
		preds = append(preds, entsql.EQ("status", string(f.Classification)))
	}
	if s := strings.TrimSpace(f.Supplier); s != "" {
		preds = append(preds, entsql.ContainsFold("supplier_name", s))
	}
	if f.From != nil {
		preds = append(preds, entsql.GTE("issue_date", r.dateArg(*f.From)))
	}
	if f.To != nil {
		preds = append(preds, entsql.LTE("issue_date", r.dateArg(*f.To)))
	}
	if f.DocumentID != "" {
		preds = append(preds, entsql.EQ("document_id", f.DocumentID))
	}
	return preds
}

func (r *ledgerRepository) queryHeaders(ctx context.Context, sel *entsql.Selector) ([]*entity.LedgerRecord, error) {
	query, args := sel.Query()
	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.LedgerRecord
	for rows.Next() {
		var (
			rec                     entity.LedgerRecord
			number, taxID, customer sql.NullString
			issueDate, createdAt    any
			class                   string
		)
		if err := rows.Scan(
			&rec.ID, &rec.DocumentID, &number, &issueDate, &rec.SupplierName, &taxID, &customer,
			&rec.TaxBase, &rec.TaxTotal, &rec.GrandTotal, &rec.Currency, &class, &rec.Notes, &createdAt,
		); err != nil {
			return nil, err
		}
		rec.InvoiceNumber = fromNull(number)
		rec.SupplierTaxID = fromNull(taxID)
		rec.CustomerName = fromNull(customer)
		rec.Classification = constants.Classification(class)
		if issueDate != nil {
			t, err := parseTime(issueDate, dateLayout)
			if err != nil {
				return nil, fmt.Errorf("issue_date of %s: %w", rec.DocumentID, err)
			}
			rec.IssueDate = &t
		}
		if rec.CreatedAt, err = parseTime(createdAt, timestampLayout); err != nil {
			return nil, fmt.Errorf("created_at of %s: %w", rec.DocumentID, err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *ledgerRepository) loadItems(ctx context.Context, records []*entity.LedgerRecord) error {
	byID := lo.KeyBy(records, func(rec *entity.LedgerRecord) int64 { return rec.ID })
	ids := lo.Map(records, func(rec *entity.LedgerRecord, _ int) any { return rec.ID })

	b := r.db.builder()
	query, args := b.Select("invoice_id", "description", "quantity", "unit_price", "line_total").
		From(b.Table(tableItems)).
		Where(entsql.In("invoice_id", ids...)).
		OrderBy("invoice_id", "position").
		Query()

	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			invoiceID int64
			it        entity.LineItem
		)
		if err := rows.Scan(&invoiceID, &it.Description, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return err
		}
		if rec, ok := byID[invoiceID]; ok {
			rec.Items = append(rec.Items, it)
		}
	}
	return rows.Err()
}

func (r *ledgerRepository) CountByClassification(ctx context.Context) (map[constants.Classification]int, error) {
	b := r.db.builder()
	query, args := b.Select("status", entsql.Count("*")).
		From(b.Table(tableInvoices)).
		GroupBy("status").
		Query()

	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "count", Cause: err}
	}
	defer rows.Close()

	out := map[constants.Classification]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, &StorageError{Op: "count", Cause: err}
		}
		out[constants.Classification(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "count", Cause: err}
	}
	return out, nil
}

// Postgres takes native time values; SQLite stores sortable text.
func (r *ledgerRepository) dateArg(t time.Time) any {
	if r.db.postgres() {
		return t
	}
	return t.Format(dateLayout)
}

func (r *ledgerRepository) timeArg(t time.Time) any {
	if r.db.postgres() {
		return t
	}
	return t.UTC().Format(timestampLayout)
}

func parseTime(v any, layout string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(layout, t)
	case []byte:
		return time.Parse(layout, string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected time value %T", v)
	}
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
