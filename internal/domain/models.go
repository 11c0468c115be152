package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExtractedField is a single regex match produced by the pattern extractor.
// It is immutable once produced.
type ExtractedField struct {
	Type          FieldType    `json:"type"`
	RawText       string       `json:"raw_text"`
	ParsedValue   string       `json:"parsed_value"`
	Position      int          `json:"position"`
	End           int          `json:"end"`
	SourceContext string       `json:"source_context"`
	ContextStart  int          `json:"context_start"`
	Confidence    float64      `json:"confidence"`
	SourceMethod  SourceMethod `json:"source_method"`
	Pattern       string       `json:"pattern"`
	Boosts        []string     `json:"boosts,omitempty"`
}

// Overlaps reports whether the byte spans of f and o intersect.
func (f *ExtractedField) Overlaps(o *ExtractedField) bool {
	return f.Position < o.End && o.Position < f.End
}

// SecurityRecord is one security position built from one or more fields.
type SecurityRecord struct {
	Identifier   string           `json:"identifier"`
	Name         string           `json:"name,omitempty"`
	MarketValue  float64          `json:"market_value"`
	Currency     string           `json:"currency,omitempty"`
	Category     SecurityCategory `json:"category,omitempty"`
	Confidence   float64          `json:"confidence"`
	CouponRate   *float64         `json:"coupon_rate,omitempty"`
	MaturityDate string           `json:"maturity_date,omitempty"`
	Source       string           `json:"source,omitempty"`
}

// SourceRecords is the record set produced by one extraction source.
type SourceRecords struct {
	Source  string           `json:"source"`
	Records []SecurityRecord `json:"records"`
}

// Conflict records a disagreement between sources for one identifier.
type Conflict struct {
	Identifier     string             `json:"identifier"`
	ValuesBySource map[string]float64 `json:"values_by_source"`
	ChosenValue    float64            `json:"chosen_value"`
	ChosenSource   string             `json:"chosen_source"`
	Rationale      string             `json:"rationale"`
}

// ReconciliationResult is the merged record set across sources.
type ReconciliationResult struct {
	Records             []SecurityRecord `json:"records"`
	TotalValue          float64          `json:"total_value"`
	Conflicts           []Conflict       `json:"conflicts"`
	ConsensusScore      float64          `json:"consensus_score"`
	CandidateCount      int              `json:"candidate_count"`
	Discarded           []string         `json:"discarded,omitempty"`
	SourcesParticipated []string         `json:"sources_participated"`
}

// Outlier is a record flagged by the portfolio validator.
type Outlier struct {
	Identifier string        `json:"identifier"`
	Value      float64       `json:"value"`
	Threshold  float64       `json:"threshold"`
	Action     OutlierAction `json:"action"`
	Suggested  float64       `json:"suggested_value"`
}

// RuleResult is the outcome of one validation rule against one subject.
type RuleResult struct {
	RuleKey  string             `json:"rule_key"`
	Severity ValidationSeverity `json:"severity"`
	Passed   bool               `json:"passed"`
	Subject  string             `json:"subject"`
	Expected string             `json:"expected"`
	Actual   string             `json:"actual"`
	Message  string             `json:"message"`
}

// ValidationReport is the portfolio-level validation outcome.
type ValidationReport struct {
	TotalValue        float64          `json:"total_value"`
	ExpectedTotal     *float64         `json:"expected_total"`
	AccuracyPercent   *float64         `json:"accuracy_percent"`
	AccuracyAvailable bool             `json:"accuracy_available"`
	AccuracyMethod    AccuracyMethod   `json:"accuracy_method"`
	FlaggedOutliers   []Outlier        `json:"flagged_outliers"`
	Status            ValidationStatus `json:"status"`
	Results           []RuleResult     `json:"results"`
}

// Document is the unit of work handed to the pipeline.
type Document struct {
	Name             string             `json:"name"`
	Text             string             `json:"text"`
	ExpectedTotal    *float64           `json:"expected_total,omitempty"`
	SecondarySources []SourceRecords    `json:"secondary_sources,omitempty"`
	Overrides        map[string]float64 `json:"overrides,omitempty"`
}

// ExtractionResult bundles everything produced for one document.
type ExtractionResult struct {
	RunID          uuid.UUID            `json:"run_id"`
	DocumentName   string               `json:"document_name"`
	Reconciliation ReconciliationResult `json:"reconciliation"`
	Validation     ValidationReport     `json:"validation"`
	FieldCounts    map[FieldType]int    `json:"field_counts"`
	Warnings       []string             `json:"warnings"`
	Degraded       bool                 `json:"degraded"` // a secondary source was unavailable
	ProcessedAt    time.Time            `json:"processed_at"`
}

// ExtractionRun is the persisted summary of one processed document.
type ExtractionRun struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	DocumentName   string           `db:"document_name" json:"document_name"`
	Status         ValidationStatus `db:"status" json:"status"`
	RecordCount    int              `db:"record_count" json:"record_count"`
	ConflictCount  int              `db:"conflict_count" json:"conflict_count"`
	TotalValue     float64          `db:"total_value" json:"total_value"`
	ExpectedTotal  *float64         `db:"expected_total" json:"expected_total"`
	Accuracy       *float64         `db:"accuracy" json:"accuracy"`
	ConsensusScore float64          `db:"consensus_score" json:"consensus_score"`
	ContentHash    string           `db:"content_hash" json:"content_hash"`
	ArchiveKey     string           `db:"archive_key" json:"archive_key"`
	Result         string           `db:"result" json:"-"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}
