package validator

import (
	"fmt"
	"regexp"
	"strconv"

	"finextract/internal/domain"
)

var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// Built-in rule keys.
const (
	RuleIdentifierFormat   = "format.identifier"
	RulePlausibleRange     = "range.market_value"
	RuleOutlier            = "range.outlier"
	RuleDuplicate          = "logic.duplicate_identifier"
	RuleKnownCurrency      = "format.currency"
	RuleLowConfidence      = "quality.low_confidence"
	RuleUnresolvedConflict = "quality.unresolved_conflict"
)

// builtinRule wraps a check function and its metadata for the registry.
type builtinRule struct {
	key  string
	name string
	sev  domain.ValidationSeverity
	fn   func(*Input) []domain.RuleResult
}

func (b *builtinRule) Check(in *Input) []domain.RuleResult {
	results := b.fn(in)
	for i := range results {
		results[i].RuleKey = b.key
		results[i].Severity = b.sev
	}
	return results
}
func (b *builtinRule) RuleKey() string                     { return b.key }
func (b *builtinRule) RuleName() string                    { return b.name }
func (b *builtinRule) Severity() domain.ValidationSeverity { return b.sev }

// BuiltinRules returns every built-in portfolio rule.
func BuiltinRules() []Rule {
	return []Rule{
		&builtinRule{
			key: RuleIdentifierFormat, name: "Format: ISIN",
			sev: domain.ValidationSeverityError, fn: identifierFormat,
		},
		&builtinRule{
			key: RulePlausibleRange, name: "Range: Plausible Market Value",
			sev: domain.ValidationSeverityError, fn: plausibleRange,
		},
		&builtinRule{
			key: RuleOutlier, name: "Range: Outlier Threshold",
			sev: domain.ValidationSeverityWarning, fn: outlier,
		},
		&builtinRule{
			key: RuleDuplicate, name: "Logical: Duplicate Identifier",
			sev: domain.ValidationSeverityError, fn: duplicateIdentifier,
		},
		&builtinRule{
			key: RuleKnownCurrency, name: "Format: Currency Code",
			sev: domain.ValidationSeverityWarning, fn: knownCurrency,
		},
		&builtinRule{
			key: RuleLowConfidence, name: "Quality: Low Confidence",
			sev: domain.ValidationSeverityWarning, fn: lowConfidence,
		},
		&builtinRule{
			key: RuleUnresolvedConflict, name: "Quality: Unresolved Conflict",
			sev: domain.ValidationSeverityWarning, fn: unresolvedConflict,
		},
	}
}

func amount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func identifierFormat(in *Input) []domain.RuleResult {
	out := make([]domain.RuleResult, 0, len(in.Records))
	for i := range in.Records {
		r := &in.Records[i]
		passed := isinPattern.MatchString(r.Identifier)
		msg := fmt.Sprintf("Format: ISIN: %s is a valid identifier", r.Identifier)
		if !passed {
			msg = fmt.Sprintf("Format: ISIN: %q does not match 2 letters + 9 alphanumerics + 1 digit", r.Identifier)
		}
		out = append(out, domain.RuleResult{
			Passed: passed, Subject: r.Identifier,
			Expected: isinPattern.String(), Actual: r.Identifier, Message: msg,
		})
	}
	return out
}

func plausibleRange(in *Input) []domain.RuleResult {
	limit := in.Config.MaxPlausibleValue
	out := make([]domain.RuleResult, 0, len(in.Records))
	for i := range in.Records {
		r := &in.Records[i]
		passed := r.MarketValue > 0 && r.MarketValue <= limit
		msg := fmt.Sprintf("Range: %s market value is plausible", r.Identifier)
		if !passed {
			msg = fmt.Sprintf("Range: %s market value %s is outside (0, %s]", r.Identifier, amount(r.MarketValue), amount(limit))
		}
		out = append(out, domain.RuleResult{
			Passed: passed, Subject: r.Identifier,
			Expected: fmt.Sprintf("(0, %s]", amount(limit)), Actual: amount(r.MarketValue), Message: msg,
		})
	}
	return out
}

func outlier(in *Input) []domain.RuleResult {
	threshold := in.Config.OutlierThreshold
	out := make([]domain.RuleResult, 0, len(in.Records))
	for i := range in.Records {
		r := &in.Records[i]
		passed := r.MarketValue <= threshold
		msg := fmt.Sprintf("Range: %s is below the outlier threshold", r.Identifier)
		if !passed {
			msg = fmt.Sprintf("Range: %s value %s exceeds outlier threshold %s, suggested action: %s",
				r.Identifier, amount(r.MarketValue), amount(threshold), in.Config.OutlierAction)
		}
		out = append(out, domain.RuleResult{
			Passed: passed, Subject: r.Identifier,
			Expected: "<= " + amount(threshold), Actual: amount(r.MarketValue), Message: msg,
		})
	}
	return out
}

func duplicateIdentifier(in *Input) []domain.RuleResult {
	counts := make(map[string]int, len(in.Records))
	var order []string
	for i := range in.Records {
		id := in.Records[i].Identifier
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}
	out := make([]domain.RuleResult, 0, len(order))
	for _, id := range order {
		passed := counts[id] == 1
		msg := fmt.Sprintf("Logical: %s appears once", id)
		if !passed {
			msg = fmt.Sprintf("Logical: %s appears %d times", id, counts[id])
		}
		out = append(out, domain.RuleResult{
			Passed: passed, Subject: id,
			Expected: "1", Actual: strconv.Itoa(counts[id]), Message: msg,
		})
	}
	return out
}

func knownCurrency(in *Input) []domain.RuleResult {
	out := make([]domain.RuleResult, 0, len(in.Records))
	for i := range in.Records {
		r := &in.Records[i]
		if r.Currency == "" {
			out = append(out, domain.RuleResult{
				Passed: true, Subject: r.Identifier,
				Message: fmt.Sprintf("Format: Currency: %s has no currency, skipping", r.Identifier),
			})
			continue
		}
		passed := domain.IsKnownCurrency(r.Currency)
		msg := fmt.Sprintf("Format: Currency: %s is a known ISO 4217 code", r.Currency)
		if !passed {
			msg = fmt.Sprintf("Format: Currency: %q is not a recognised ISO 4217 code", r.Currency)
		}
		out = append(out, domain.RuleResult{
			Passed: passed, Subject: r.Identifier,
			Expected: "ISO 4217 code", Actual: r.Currency, Message: msg,
		})
	}
	return out
}

func lowConfidence(in *Input) []domain.RuleResult {
	floor := in.Config.LowConfidence
	out := make([]domain.RuleResult, 0, len(in.Records))
	for i := range in.Records {
		r := &in.Records[i]
		passed := r.Confidence >= floor
		msg := fmt.Sprintf("Quality: %s confidence %.2f", r.Identifier, r.Confidence)
		if !passed {
			msg = fmt.Sprintf("Quality: %s confidence %.2f is below %.2f, review the extraction", r.Identifier, r.Confidence, floor)
		}
		out = append(out, domain.RuleResult{
			Passed: passed, Subject: r.Identifier,
			Expected: fmt.Sprintf(">= %.2f", floor), Actual: fmt.Sprintf("%.2f", r.Confidence), Message: msg,
		})
	}
	return out
}

func unresolvedConflict(in *Input) []domain.RuleResult {
	out := make([]domain.RuleResult, 0, len(in.Conflicts))
	for i := range in.Conflicts {
		c := &in.Conflicts[i]
		passed := c.ChosenSource == domain.SourceOverride
		msg := fmt.Sprintf("Quality: %s conflict resolved by override", c.Identifier)
		if !passed {
			msg = fmt.Sprintf("Quality: %s sources disagree, kept %s from %s", c.Identifier, amount(c.ChosenValue), c.ChosenSource)
		}
		out = append(out, domain.RuleResult{
			Passed: passed, Subject: c.Identifier,
			Expected: "sources agree", Actual: c.Rationale, Message: msg,
		})
	}
	return out
}
