package bill

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ReportSheet is the name of the single sheet in a bill report
const ReportSheet = "Bill Details"

// ReportHeaders are the report columns in order
var ReportHeaders = []string{
	"Filename",
	"Customer Name",
	"Account Number",
	"Due Date",
	"Total Amount Due",
	"Payable Within Due Date",
	"Payable After Due Date",
}

// Labels of the summary rows appended after the data
const (
	LabelGrandTotal   = "Grand Total Payable Amount:"
	LabelWithinTotal  = "Total Payable Within Due Date:"
	LabelAfterTotal   = "Total Payable After Due Date:"
	reportFilePattern = "bill-report-*.xlsx"
)

// ErrNothingExtracted is returned when a report is requested for a batch without records
var ErrNothingExtracted = errors.New("no bill data extracted")

// BuildReport lays out the batch as a workbook: one row per record, a blank row, then the totals.
// The caller must Close the returned file.
func BuildReport(result *BatchResult) (*excelize.File, error) {
	if result == nil || len(result.Records) == 0 {
		return nil, ErrNothingExtracted
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	widths := make([]int, len(ReportHeaders))
	header := make([]any, len(ReportHeaders))
	for i, h := range ReportHeaders {
		header[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(ReportSheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, r := range result.Records {
		amounts := []decimal.Decimal{
			CoerceAmount(r.TotalAmountDue),
			CoerceAmount(r.PayableWithinDueDate),
			CoerceAmount(r.PayableAfterDueDate),
		}
		text := []string{r.Filename, r.CustomerName, r.AccountNumber, r.DueDate}
		row := make([]any, 0, len(ReportHeaders))
		for _, t := range text {
			row = append(row, t)
		}
		for _, a := range amounts {
			text = append(text, a.String())
			row = append(row, a.InexactFloat64())
		}
		for col, t := range text {
			if n := utf8.RuneCountInString(t); n > widths[col] {
				widths[col] = n
			}
		}

		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ReportSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(ReportSheet, col, col, float64(w+2)); err != nil {
			f.Close()
			return nil, fmt.Errorf("setting column width: %w", err)
		}
	}

	// Row after the data stays blank as a separator
	summaryRow := len(result.Records) + 3
	summary := []struct {
		label string
		total decimal.Decimal
	}{
		{LabelGrandTotal, result.Totals.TotalAmountDue},
		{LabelWithinTotal, result.Totals.PayableWithinDueDate},
		{LabelAfterTotal, result.Totals.PayableAfterDueDate},
	}
	for i, s := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, summaryRow+i)
		row := []any{s.label, s.total.InexactFloat64()}
		if err := f.SetSheetRow(ReportSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing summary: %w", err)
		}
	}

	return f, nil
}

// WriteReport builds the report and saves it as a new temporary file in dir
// (the system temp directory when dir is empty). It returns the file path.
// Nothing is left on disk when any step fails.
func WriteReport(result *BatchResult, dir string) (string, error) {
	f, err := BuildReport(result)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("xlsx write: %w", err)
	}

	tmp, err := os.CreateTemp(dir, reportFilePattern)
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	_, writeErr := tmp.Write(buf.Bytes())
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing report file: %w", errors.Join(writeErr, closeErr))
	}

	slog.Info("Report created", "path", tmp.Name(), "rows", len(result.Records))
	return tmp.Name(), nil
}
