package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
	"github.com/joseph-ayodele/invoice-ledger/internal/utils"
)

// CSVColumns is the fixed column order of the append-only export.
var CSVColumns = []string{
	"issue_date", "invoice_number", "supplier", "supplier_tax_id",
	"tax_base", "tax_total", "grand_total", "currency", "item_count",
}

// CSVAppender appends one row per saved invoice, writing the header when the file is new.
type CSVAppender struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

func NewCSVAppender(path string, logger *slog.Logger) *CSVAppender {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVAppender{path: path, logger: logger}
}

// Path returns the target file.
func (a *CSVAppender) Path() string { return a.path }

func (a *CSVAppender) Append(_ context.Context, documentID string, inv entity.StructuredInvoice) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("csv mkdir: %w", err)
		}
	}

	writeHeader := false
	if st, err := os.Stat(a.path); os.IsNotExist(err) || (err == nil && st.Size() == 0) {
		writeHeader = true
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csv open: %w", err)
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			a.logger.Warn("close csv file error", "error", err)
		}
	}(f)

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(CSVColumns); err != nil {
			return fmt.Errorf("csv header: %w", err)
		}
	}
	if err := w.Write(CSVRow(inv)); err != nil {
		return fmt.Errorf("csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}

	a.logger.Debug("export.csv.appended", "document_id", documentID, "path", a.path)
	return nil
}

// CSVRow renders inv in CSVColumns order.
func CSVRow(inv entity.StructuredInvoice) []string {
	return []string{
		utils.FormatYMD(inv.IssueDate),
		inv.Number(),
		inv.SupplierName,
		utils.StrOrEmpty(inv.SupplierTaxID),
		inv.TaxBase.StringFixed(2),
		inv.TaxTotal.StringFixed(2),
		inv.GrandTotal.StringFixed(2),
		inv.Currency,
		strconv.Itoa(len(inv.Items)),
	}
}
