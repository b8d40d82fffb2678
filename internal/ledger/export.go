package ledger

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var exportHeader = []string{"date", "kind", "category", "reference", "description", "amount"}

// WriteCSV renders entries as CSV with amounts formatted for the given locale.
func WriteCSV(w io.Writer, entries []Entry, tag language.Tag) error {
	printer := message.NewPrinter(tag)
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			e.Date.Format("2006-01-02"),
			string(e.Kind),
			e.Category,
			e.Reference,
			e.Description,
			FormatAmount(printer, e.Amount),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatAmount groups the integer part per locale and keeps two decimals.
func FormatAmount(p *message.Printer, amount decimal.Decimal) string {
	rounded := amount.Round(2)
	whole := rounded.Truncate(0)
	frac := rounded.Sub(whole).Abs().StringFixed(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}
	return sign + p.Sprintf("%d", whole.Abs().IntPart()) + decimalSeparator(p) + strings.TrimPrefix(frac, "0.")
}

func decimalSeparator(p *message.Printer) string {
	sample := p.Sprintf("%.1f", 0.5)
	if len(sample) >= 2 {
		return sample[1:2]
	}
	return "."
}
