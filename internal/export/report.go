package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/joseph-ayodele/invoice-ledger/internal/pipeline"
)

// WriteOutcomeTable prints one row per processed document followed by the totals.
func WriteOutcomeTable(w io.Writer, outcomes []pipeline.Outcome, sum pipeline.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Supplier", "Total", "Status", "Notes"})
	table.SetAutoWrapText(false)

	for _, o := range outcomes {
		supplier, total := "-", "-"
		if o.Invoice != nil {
			supplier = o.Invoice.SupplierName
			total = o.Invoice.GrandTotal.StringFixed(2) + " " + o.Invoice.Currency
		}
		table.Append([]string{o.Document.Filename, supplier, total, status(o), truncate(o.Reason(), 80)})
	}
	table.Render()

	kinds := lo.Keys(sum.ByKind)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	_, _ = fmt.Fprintf(w, "processed %d document(s):", sum.Total)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, " %s=%d", k, sum.ByKind[k])
	}
	_, _ = fmt.Fprintln(w)
}

func status(o pipeline.Outcome) string {
	if o.Classification != "" {
		return string(o.Classification)
	}
	return string(o.Kind)
}
