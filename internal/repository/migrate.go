package repository

import (
	"context"
	"time"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id      TEXT NOT NULL UNIQUE,
		invoice_number   TEXT,
		issue_date       TEXT,
		supplier_name    TEXT NOT NULL,
		supplier_tax_id  TEXT,
		customer_name    TEXT,
		tax_base         TEXT NOT NULL,
		tax_total        TEXT NOT NULL,
		grand_total      TEXT NOT NULL,
		currency         TEXT NOT NULL,
		status           TEXT NOT NULL,
		validation_notes TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_items (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id  INTEGER NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		description TEXT NOT NULL,
		quantity    TEXT NOT NULL,
		unit_price  TEXT NOT NULL,
		line_total  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items (invoice_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_created ON invoices (created_at, id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id               BIGSERIAL PRIMARY KEY,
		document_id      TEXT NOT NULL UNIQUE,
		invoice_number   TEXT,
		issue_date       DATE,
		supplier_name    TEXT NOT NULL,
		supplier_tax_id  TEXT,
		customer_name    TEXT,
		tax_base         NUMERIC(14,2) NOT NULL,
		tax_total        NUMERIC(14,2) NOT NULL,
		grand_total      NUMERIC(14,2) NOT NULL,
		currency         CHAR(3) NOT NULL,
		status           TEXT NOT NULL CHECK (status IN ('OK', 'REVIEW', 'ERROR')),
		validation_notes TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_items (
		id          BIGSERIAL PRIMARY KEY,
		invoice_id  BIGINT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		description TEXT NOT NULL,
		quantity    NUMERIC(14,4) NOT NULL,
		unit_price  NUMERIC(14,2) NOT NULL,
		line_total  NUMERIC(14,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items (invoice_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_created ON invoices (created_at, id)`,
}

// Migrate creates the ledger tables when missing. It is safe to run on every start.
func (d *DB) Migrate(ctx context.Context) error {
	start := time.Now()
	stmts := sqliteSchema
	if d.postgres() {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := d.SQL().ExecContext(ctx, stmt); err != nil {
			d.logger.Error("ledger.migrate.failed", "error", err)
			return &StorageError{Op: "migrate", Cause: err}
		}
	}
	d.logger.Info("ledger.migrate.ok", "dialect", d.dialect, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}
