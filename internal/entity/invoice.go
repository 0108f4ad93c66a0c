package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one detail line of an invoice, in document order.
type LineItem struct {
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	LineTotal   decimal.Decimal `json:"line_total" validate:"gte=0"`
}

// StructuredInvoice is the normalized, typed output of extraction.
// Monetary fields are decimals with two-decimal precision semantics.
type StructuredInvoice struct {
	InvoiceNumber *string    `json:"invoice_number,omitempty"`
	IssueDate     *time.Time `json:"issue_date,omitempty"`

	SupplierName  string  `json:"supplier_name" validate:"required"`
	SupplierTaxID *string `json:"supplier_tax_id,omitempty"`
	CustomerName  *string `json:"customer_name,omitempty"`

	TaxBase    decimal.Decimal `json:"tax_base" validate:"gte=0"`
	TaxTotal   decimal.Decimal `json:"tax_total" validate:"gte=0"`
	GrandTotal decimal.Decimal `json:"grand_total" validate:"gte=0"`
	Currency   string          `json:"currency" validate:"required,iso4217"`

	Items []LineItem `json:"items" validate:"dive"`
}

// Number returns the invoice number or "" when it was not extracted.
func (i StructuredInvoice) Number() string {
	if i.InvoiceNumber == nil {
		return ""
	}
	return *i.InvoiceNumber
}

// HasNumber reports whether a non-blank invoice number was extracted.
func (i StructuredInvoice) HasNumber() bool {
	return i.InvoiceNumber != nil && *i.InvoiceNumber != ""
}

// LineTotalSum adds lineTotal across all items.
func (i StructuredInvoice) LineTotalSum() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range i.Items {
		sum = sum.Add(it.LineTotal)
	}
	return sum
}
