// Package validate applies the business arithmetic rules to an extracted invoice.
package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
)

var (
	// ArithmeticTolerance absorbs rounding between base + tax and the grand total.
	ArithmeticTolerance = decimal.RequireFromString("0.05")
	// LineItemTolerance is the allowed gap between summed line totals and base or total.
	LineItemTolerance = decimal.NewFromInt(1)
)

// Validate runs every rule, in order, and classifies the invoice.
// ERROR if any rule failed hard, REVIEW if only warnings, OK otherwise.
func Validate(inv entity.StructuredInvoice) entity.ValidationResult {
	var errs, warns []string

	computed := inv.TaxBase.Add(inv.TaxTotal)
	delta := computed.Sub(inv.GrandTotal).Abs()
	if delta.GreaterThan(ArithmeticTolerance) {
		errs = append(errs, fmt.Sprintf(
			"arithmetic mismatch: tax base (%s) + tax total (%s) != grand total (%s), delta %s",
			inv.TaxBase.StringFixed(2), inv.TaxTotal.StringFixed(2), inv.GrandTotal.StringFixed(2), delta.StringFixed(2),
		))
	}

	if !inv.HasNumber() {
		warns = append(warns, "invoice number is missing")
	}

	if inv.IssueDate == nil {
		warns = append(warns, "issue date is missing")
	}

	if len(inv.Items) == 0 {
		warns = append(warns, "invoice has no line items")
	} else {
		// line totals may or may not include tax, so only a mismatch against both is flagged
		sum := inv.LineTotalSum()
		offBase := sum.Sub(inv.TaxBase).Abs().GreaterThan(LineItemTolerance)
		offTotal := sum.Sub(inv.GrandTotal).Abs().GreaterThan(LineItemTolerance)
		if offBase && offTotal {
			warns = append(warns, fmt.Sprintf(
				"line totals sum (%s) matches neither tax base (%s) nor grand total (%s)",
				sum.StringFixed(2), inv.TaxBase.StringFixed(2), inv.GrandTotal.StringFixed(2),
			))
		}
	}

	res := entity.ValidationResult{
		Classification: constants.ClassificationOK,
		Errors:         errs,
		Warnings:       warns,
	}
	switch {
	case len(errs) > 0:
		res.Classification = constants.ClassificationError
	case len(warns) > 0:
		res.Classification = constants.ClassificationReview
	}
	return res
}
