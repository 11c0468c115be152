// Package normalize cleans PDF-to-text output before pattern extraction.
package normalize

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reApostrophe = regexp.MustCompile("[\u2019\u2018\u02bc\u00b4`]")
	reNBSP       = regexp.MustCompile("[\u00a0\u202f\u2009]")
	reTabRun     = regexp.MustCompile(`[ \t]*\t[ \t]*| {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)

	// OCR artifacts around the ISIN label.
	reSplitLabel = regexp.MustCompile(`\bI ?S ?I ?N ?:`)
	reLabelCode  = regexp.MustCompile(`\bI ?S ?I ?N( [A-Z]{2}[A-Z0-9]{9}[0-9]\b)`)
	reLookalike  = regexp.MustCompile(`\b[l1|]SIN\b`)

	// An identifier broken after its country prefix ("CH 0012032048").
	reSplitISIN = regexp.MustCompile(`\b([A-Z]{2}) ([A-Z0-9]{9}[0-9])\b`)
	// An identifier whose check digit was read as the letter O.
	reTrailingO = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{9}O\b`)

	reEuropean   = regexp.MustCompile(`\b\d{1,3}(?:\.\d{3})+,\d{1,2}\b`)
	reDotGrouped = regexp.MustCompile(`\b\d{1,3}(?:\.\d{3}){2,}\b`)
	reComma      = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b`)
	reSpaced     = regexp.MustCompile(`\b\d{1,3}(?: \d{3})+\.\d{2}\b`)
)

// ISIN country prefixes that commonly appear split from the rest of the code.
var isinPrefixes = map[string]bool{
	"AT": true, "AU": true, "BE": true, "BM": true, "CA": true, "CH": true,
	"CY": true, "DE": true, "DK": true, "ES": true, "FI": true, "FR": true,
	"GB": true, "GG": true, "IE": true, "IT": true, "JE": true, "JP": true,
	"KY": true, "LI": true, "LU": true, "NL": true, "NO": true, "SE": true,
	"US": true, "XS": true, "XC": true,
}

// Normalize fixes OCR splits, folds number formats into Swiss apostrophe
// grouping and tidies whitespace. Tab characters and runs of two or more
// spaces are collapsed to a single tab so column layout remains visible.
// Input it does not recognise passes through unchanged.
func Normalize(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reNBSP.ReplaceAllString(s, " ")
	s = reApostrophe.ReplaceAllString(s, "'")

	s = reSplitLabel.ReplaceAllString(s, "ISIN:")
	s = reLabelCode.ReplaceAllString(s, "ISIN$1")
	s = reLookalike.ReplaceAllString(s, "ISIN")
	s = reSplitISIN.ReplaceAllStringFunc(s, joinSplitISIN)
	s = reTrailingO.ReplaceAllStringFunc(s, fixTrailingO)

	s = NormalizeNumbers(s)

	s = reTabRun.ReplaceAllString(s, "\t")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// NormalizeNumbers rewrites comma-grouped, dot-grouped and space-grouped
// numbers into apostrophe grouping with a dot decimal separator.
func NormalizeNumbers(s string) string {
	s = reEuropean.ReplaceAllStringFunc(s, func(m string) string {
		m = strings.ReplaceAll(m, ".", "'")
		return strings.Replace(m, ",", ".", 1)
	})
	s = reDotGrouped.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(m, ".", "'")
	})
	s = reComma.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(m, ",", "'")
	})
	s = reSpaced.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(m, " ", "'")
	})
	return s
}

func joinSplitISIN(m string) string {
	if !isinPrefixes[m[:2]] {
		return m
	}
	return m[:2] + m[3:]
}

func fixTrailingO(m string) string {
	// Require a digit in the body so ordinary upper-case words are left alone.
	if !strings.ContainsAny(m[2:11], "0123456789") {
		return m
	}
	return m[:11] + "0"
}
