package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"finextract/internal/domain"
)

// BOM is the UTF-8 byte order mark written before CSV output so Excel on
// Windows picks the right encoding.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the CSV header row.
var columns = []string{
	"ISIN",
	"Name",
	"Market Value",
	"Currency",
	"Category",
	"Coupon Rate",
	"Maturity Date",
	"Confidence",
	"Source",
	"Conflict",
	"Outlier",
}

// Writer wraps csv.Writer for exporting reconciled records as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteResult writes one row per reconciled record of res.
func (w *Writer) WriteResult(res *domain.ExtractionResult) error {
	conflicts := conflictSet(res)
	outliers := outlierSet(res)
	for i := range res.Reconciliation.Records {
		rec := &res.Reconciliation.Records[i]
		if err := w.csv.Write(recordToRow(rec, conflicts[rec.Identifier], outliers[rec.Identifier])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

func recordToRow(rec *domain.SecurityRecord, conflict, outlier bool) []string {
	row := make([]string, len(columns))
	row[0] = rec.Identifier
	row[1] = rec.Name
	row[2] = formatMoney(rec.MarketValue)
	row[3] = rec.Currency
	row[4] = string(rec.Category)
	if rec.CouponRate != nil {
		row[5] = strconv.FormatFloat(*rec.CouponRate, 'f', -1, 64)
	}
	row[6] = rec.MaturityDate
	row[7] = strconv.FormatFloat(rec.Confidence, 'f', 2, 64)
	row[8] = rec.Source
	row[9] = formatBool(conflict)
	row[10] = formatBool(outlier)
	return row
}

func conflictSet(res *domain.ExtractionResult) map[string]bool {
	set := make(map[string]bool, len(res.Reconciliation.Conflicts))
	for _, c := range res.Reconciliation.Conflicts {
		set[c.Identifier] = true
	}
	return set
}

func outlierSet(res *domain.ExtractionResult) map[string]bool {
	set := make(map[string]bool, len(res.Validation.FlaggedOutliers))
	for _, o := range res.Validation.FlaggedOutliers {
		set[o.Identifier] = true
	}
	return set
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
