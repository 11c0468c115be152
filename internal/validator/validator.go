// Package validator checks a reconciled portfolio: totals, accuracy against
// an expected total, outliers and per-record rules.
package validator

import (
	"finextract/internal/domain"
)

// Rule is a single built-in validation rule.
type Rule interface {
	Check(in *Input) []domain.RuleResult
	RuleKey() string
	RuleName() string
	Severity() domain.ValidationSeverity
}

// Input is what rules see for one document.
type Input struct {
	Records   []domain.SecurityRecord
	Conflicts []domain.Conflict
	Config    Config
}
