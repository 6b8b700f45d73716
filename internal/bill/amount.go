package bill

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CoerceAmount turns an extracted amount into a number.
// Thousands separators are ignored; anything unparseable, including "N/A", is zero.
func CoerceAmount(s string) decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SumTotals adds up the three amount columns of records without rounding
func SumTotals(records []Record) Totals {
	totals := Totals{
		TotalAmountDue:       decimal.Zero,
		PayableWithinDueDate: decimal.Zero,
		PayableAfterDueDate:  decimal.Zero,
	}
	for _, r := range records {
		totals.TotalAmountDue = totals.TotalAmountDue.Add(CoerceAmount(r.TotalAmountDue))
		totals.PayableWithinDueDate = totals.PayableWithinDueDate.Add(CoerceAmount(r.PayableWithinDueDate))
		totals.PayableAfterDueDate = totals.PayableAfterDueDate.Add(CoerceAmount(r.PayableAfterDueDate))
	}
	return totals
}
