package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-ledger/internal/repository"
	"github.com/joseph-ayodele/invoice-ledger/internal/utils"
)

const (
	invoicesSheet = "Invoices"
	itemsSheet    = "Items"
)

// Service produces XLSX reports over the ledger.
type Service struct {
	ledger repository.Ledger
	logger *slog.Logger
}

func NewService(ledger repository.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger}
}

// ExportXLSX returns a workbook (as bytes) with one sheet of invoice headers and one
// of line items, for the records matching f in ledger order.
func (s *Service) ExportXLSX(ctx context.Context, f repository.Filters) ([]byte, error) {
	start := time.Now()

	recs, err := s.ledger.ListAll(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	wb := excelize.NewFile()
	defer func() {
		if err := wb.Close(); err != nil {
			s.logger.Warn("close workbook error", "error", err)
		}
	}()

	if err := wb.SetSheetName("Sheet1", invoicesSheet); err != nil {
		return nil, err
	}
	if _, err := wb.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Document", "Issue Date", "Invoice Number", "Supplier", "Supplier Tax ID", "Customer",
		"Tax Base", "Tax Total", "Grand Total", "Currency", "Status", "Notes", "Created At",
	}
	writeRow(wb, invoicesSheet, 1, toAny(headers))
	writeRow(wb, itemsSheet, 1, []any{"Document", "Line", "Description", "Quantity", "Unit Price", "Line Total"})

	row, itemRow := 2, 2
	for _, r := range recs {
		writeRow(wb, invoicesSheet, row, []any{
			r.DocumentID,
			utils.FormatYMD(r.IssueDate),
			r.Number(),
			r.SupplierName,
			utils.StrOrEmpty(r.SupplierTaxID),
			utils.StrOrEmpty(r.CustomerName),
			r.TaxBase.InexactFloat64(),
			r.TaxTotal.InexactFloat64(),
			r.GrandTotal.InexactFloat64(),
			r.Currency,
			string(r.Classification),
			truncate(r.Notes, 240),
			r.CreatedAt.Format(time.RFC3339),
		})
		row++

		for i, it := range r.Items {
			writeRow(wb, itemsSheet, itemRow, []any{
				r.DocumentID,
				i + 1,
				it.Description,
				it.Quantity.InexactFloat64(),
				it.UnitPrice.InexactFloat64(),
				it.LineTotal.InexactFloat64(),
			})
			itemRow++
		}
	}

	// Widen a few columns
	_ = wb.SetColWidth(invoicesSheet, "A", "A", 28) // document
	_ = wb.SetColWidth(invoicesSheet, "B", "C", 14)
	_ = wb.SetColWidth(invoicesSheet, "D", "D", 32) // supplier
	_ = wb.SetColWidth(invoicesSheet, "G", "I", 14) // amounts
	_ = wb.SetColWidth(invoicesSheet, "L", "L", 60) // notes
	_ = wb.SetColWidth(itemsSheet, "C", "C", 48)

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"item_rows", itemRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(wb *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = wb.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
