package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

const (
	DefaultCurrency = "EUR"
	dateLayout      = "2006-01-02"
)

// InvoiceFields is the wire shape requested from the model. Money travels as
// strings so no binary float ever reaches the domain type.
type InvoiceFields struct {
	InvoiceNumber string       `json:"invoice_number,omitempty"`
	IssueDate     string       `json:"issue_date,omitempty"` // YYYY-MM-DD
	SupplierName  string       `json:"supplier_name"`
	SupplierTaxID string       `json:"supplier_tax_id,omitempty"`
	CustomerName  string       `json:"customer_name,omitempty"`
	TaxBase       string       `json:"tax_base"`
	TaxTotal      string       `json:"tax_total,omitempty"`
	GrandTotal    string       `json:"grand_total"`
	Currency      string       `json:"currency,omitempty"`
	Items         []ItemFields `json:"items,omitempty"`
}

type ItemFields struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

// ToInvoice converts wire fields into the domain type. Missing tax total is zero
// and a missing currency defaults to EUR.
func (f InvoiceFields) ToInvoice() (entity.StructuredInvoice, error) {
	var inv entity.StructuredInvoice
	var err error

	inv.InvoiceNumber = optional(f.InvoiceNumber)
	inv.SupplierTaxID = optional(f.SupplierTaxID)
	inv.CustomerName = optional(f.CustomerName)
	inv.SupplierName = strings.TrimSpace(f.SupplierName)

	if s := strings.TrimSpace(f.IssueDate); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return entity.StructuredInvoice{}, fmt.Errorf("issue_date %q: %w", s, err)
		}
		inv.IssueDate = &t
	}

	if inv.TaxBase, err = money("tax_base", f.TaxBase, false); err != nil {
		return entity.StructuredInvoice{}, err
	}
	if inv.TaxTotal, err = money("tax_total", f.TaxTotal, true); err != nil {
		return entity.StructuredInvoice{}, err
	}
	if inv.GrandTotal, err = money("grand_total", f.GrandTotal, false); err != nil {
		return entity.StructuredInvoice{}, err
	}

	inv.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	if inv.Currency == "" {
		inv.Currency = DefaultCurrency
	}

	for i, it := range f.Items {
		li := entity.LineItem{Description: strings.TrimSpace(it.Description)}
		field := fmt.Sprintf("items[%d]", i)
		if li.Quantity, err = money(field+".quantity", it.Quantity, false); err != nil {
			return entity.StructuredInvoice{}, err
		}
		if li.UnitPrice, err = money(field+".unit_price", it.UnitPrice, false); err != nil {
			return entity.StructuredInvoice{}, err
		}
		if li.LineTotal, err = money(field+".line_total", it.LineTotal, false); err != nil {
			return entity.StructuredInvoice{}, err
		}
		inv.Items = append(inv.Items, li)
	}
	return inv, nil
}

func money(field, s string, zeroIfEmpty bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if zeroIfEmpty {
			return decimal.Zero, nil
		}
		return decimal.Decimal{}, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s %q: %w", field, s, err)
	}
	return d, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
