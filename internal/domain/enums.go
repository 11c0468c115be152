package domain

// FieldType identifies what a pattern extracts.
type FieldType string

const (
	FieldIdentifier FieldType = "identifier"
	FieldMonetary   FieldType = "monetary"
	FieldPercentage FieldType = "percentage"
	FieldDate       FieldType = "date"
)

// AllFieldTypes lists field types in extraction order.
var AllFieldTypes = []FieldType{FieldIdentifier, FieldMonetary, FieldPercentage, FieldDate}

// SourceMethod describes how a field or record was obtained.
type SourceMethod string

const (
	MethodTextRegex   SourceMethod = "text_regex"
	MethodTableLayout SourceMethod = "table_layout"
	MethodOCRText     SourceMethod = "ocr_text"
	MethodVision      SourceMethod = "vision"
)

// SourceOverride is the source reported for values set by a manual override.
const SourceOverride = "override"

// SecurityCategory is a coarse asset class guessed from keywords.
type SecurityCategory string

const (
	CategoryBond       SecurityCategory = "bond"
	CategoryEquity     SecurityCategory = "equity"
	CategoryFund       SecurityCategory = "fund"
	CategoryStructured SecurityCategory = "structured_product"
	CategoryMoneyMkt   SecurityCategory = "money_market"
	CategoryOther      SecurityCategory = "other"
)

// ValidationSeverity indicates how serious a failed rule is.
type ValidationSeverity string

const (
	ValidationSeverityError   ValidationSeverity = "error"
	ValidationSeverityWarning ValidationSeverity = "warning"
)

// ValidationStatus is the overall outcome of a validation run.
type ValidationStatus string

const (
	ValidationStatusValid   ValidationStatus = "valid"
	ValidationStatusWarning ValidationStatus = "warning"
	ValidationStatusInvalid ValidationStatus = "invalid"
)

// AccuracyMethod selects how accuracy against an expected total is computed.
type AccuracyMethod string

const (
	// AccuracyRatio is min(total, expected) / max(total, expected).
	AccuracyRatio AccuracyMethod = "ratio"
	// AccuracyDeviation is 1 - |total - expected| / expected, floored at 0.
	AccuracyDeviation AccuracyMethod = "deviation"
)

// OutlierAction is the suggestion attached to a flagged outlier.
type OutlierAction string

const (
	OutlierReview OutlierAction = "review"
	OutlierClip   OutlierAction = "clip"
)

// ExportFormat is a supported export file format.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ExportContentTypes maps export formats to MIME types.
var ExportContentTypes = map[ExportFormat]string{
	ExportJSON: "application/json",
	ExportCSV:  "text/csv",
	ExportXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}
