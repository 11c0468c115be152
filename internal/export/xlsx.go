package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"finextract/internal/domain"
)

const (
	sheetRecords    = "Records"
	sheetConflicts  = "Conflicts"
	sheetValidation = "Validation"
)

// WriteXLSX writes a workbook with records, conflicts and validation sheets.
func WriteXLSX(w io.Writer, res *domain.ExtractionResult) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetRecords); err != nil {
		return fmt.Errorf("xlsx rename sheet: %w", err)
	}
	for _, name := range []string{sheetConflicts, sheetValidation} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("xlsx new sheet %s: %w", name, err)
		}
	}

	if err := writeRecords(f, res); err != nil {
		return err
	}
	if err := writeConflicts(f, res); err != nil {
		return err
	}
	if err := writeValidation(f, res); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("xlsx %s row %d: %w", sheet, row, err)
	}
	return nil
}

func writeRecords(f *excelize.File, res *domain.ExtractionResult) error {
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := setRow(f, sheetRecords, 1, header); err != nil {
		return err
	}

	conflicts := conflictSet(res)
	outliers := outlierSet(res)
	for i := range res.Reconciliation.Records {
		rec := &res.Reconciliation.Records[i]
		var coupon any = ""
		if rec.CouponRate != nil {
			coupon = *rec.CouponRate
		}
		row := []any{
			rec.Identifier, rec.Name, rec.MarketValue, rec.Currency, string(rec.Category),
			coupon, rec.MaturityDate, rec.Confidence, rec.Source,
			formatBool(conflicts[rec.Identifier]), formatBool(outliers[rec.Identifier]),
		}
		if err := setRow(f, sheetRecords, i+2, row); err != nil {
			return err
		}
	}

	total := len(res.Reconciliation.Records) + 2
	if err := setRow(f, sheetRecords, total, []any{"Total", "", res.Validation.TotalValue}); err != nil {
		return err
	}
	_ = f.SetColWidth(sheetRecords, "A", "A", 16)
	_ = f.SetColWidth(sheetRecords, "B", "B", 40)
	_ = f.SetColWidth(sheetRecords, "C", "C", 18)
	return nil
}

func writeConflicts(f *excelize.File, res *domain.ExtractionResult) error {
	if err := setRow(f, sheetConflicts, 1, []any{"ISIN", "Source", "Value", "Chosen", "Rationale"}); err != nil {
		return err
	}
	row := 2
	for _, c := range res.Reconciliation.Conflicts {
		for _, src := range sortedKeys(c.ValuesBySource) {
			chosen := formatBool(src == c.ChosenSource)
			if err := setRow(f, sheetConflicts, row, []any{c.Identifier, src, c.ValuesBySource[src], chosen, c.Rationale}); err != nil {
				return err
			}
			row++
		}
		if c.ChosenSource == domain.SourceOverride {
			if err := setRow(f, sheetConflicts, row, []any{c.Identifier, c.ChosenSource, c.ChosenValue, "Yes", c.Rationale}); err != nil {
				return err
			}
			row++
		}
	}
	_ = f.SetColWidth(sheetConflicts, "E", "E", 80)
	return nil
}

func writeValidation(f *excelize.File, res *domain.ExtractionResult) error {
	v := &res.Validation
	var accuracy any = "n/a"
	if v.AccuracyPercent != nil {
		accuracy = *v.AccuracyPercent
	}
	var expected any = ""
	if v.ExpectedTotal != nil {
		expected = *v.ExpectedTotal
	}
	summary := [][]any{
		{"Status", string(v.Status)},
		{"Total Value", v.TotalValue},
		{"Expected Total", expected},
		{"Accuracy %", accuracy},
		{"Accuracy Method", string(v.AccuracyMethod)},
		{"Consensus Score", res.Reconciliation.ConsensusScore},
	}
	row := 1
	for _, s := range summary {
		if err := setRow(f, sheetValidation, row, s); err != nil {
			return err
		}
		row++
	}

	row++
	if err := setRow(f, sheetValidation, row, []any{"Rule", "Severity", "Subject", "Passed", "Message"}); err != nil {
		return err
	}
	for _, r := range v.Results {
		if r.Passed {
			continue
		}
		row++
		if err := setRow(f, sheetValidation, row, []any{r.RuleKey, string(r.Severity), r.Subject, "No", r.Message}); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheetValidation, "A", "A", 28)
	_ = f.SetColWidth(sheetValidation, "E", "E", 80)
	return nil
}
