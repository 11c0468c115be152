package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reCommaGrouped = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	reDotsGrouped  = regexp.MustCompile(`^\d{1,3}(?:\.\d{3}){2,}$`)
	reCanonical    = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// ParseAmount parses a number written in Swiss (1'234'567.89), comma-grouped
// (1,234,567.89), European (1.234.567,89) or plain (1234567.89) form.
// A leading or trailing minus sign and accounting parentheses mark negatives.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = reApostrophe.ReplaceAllString(s, "'")
	s = strings.ReplaceAll(s, "\u2212", "-")

	negative := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative = true
		s = s[1 : len(s)-1]
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = s[:len(s)-1]
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")

	s = strings.NewReplacer("'", "", " ", "", "\u00a0", "", "\u202f", "", "\u2009", "").Replace(s)
	s = canonicalSeparators(s)

	if !reCanonical.MatchString(s) {
		return decimal.Zero, fmt.Errorf("unrecognised number format: %q", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing number %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// canonicalSeparators resolves the remaining comma/dot separators so that
// only a dot decimal separator is left.
func canonicalSeparators(s string) string {
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// The separator that appears last is the decimal one.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case hasComma:
		if reCommaGrouped.MatchString(s) {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case hasDot:
		if reDotsGrouped.MatchString(s) {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}
