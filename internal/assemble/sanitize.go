package assemble

import (
	"fmt"
	"sort"
	"strings"

	"finextract/internal/domain"
	"finextract/internal/extract"
)

// SanitizeRecords applies the record invariants to records that did not come
// from the text pass. Identifiers and currencies are trimmed and upper-cased,
// confidence is clamped to [0, 1], and records with a malformed identifier or
// a market value outside (0, maxPlausible] are dropped with a warning. The
// input slice is not modified.
func SanitizeRecords(records []domain.SecurityRecord, maxPlausible float64) ([]domain.SecurityRecord, []string) {
	if maxPlausible <= 0 {
		maxPlausible = DefaultMaxPlausibleValue
	}
	out := make([]domain.SecurityRecord, 0, len(records))
	var warnings []string
	for _, rec := range records {
		rec.Identifier = strings.ToUpper(strings.TrimSpace(rec.Identifier))
		rec.Currency = strings.ToUpper(strings.TrimSpace(rec.Currency))
		if !extract.ValidISIN(rec.Identifier) {
			warnings = append(warnings, fmt.Sprintf("%q: not a valid ISIN, record dropped", rec.Identifier))
			continue
		}
		if rec.MarketValue <= 0 || rec.MarketValue > maxPlausible {
			warnings = append(warnings, fmt.Sprintf("%s: market value %g outside plausible range (0, %.0f], record dropped",
				rec.Identifier, rec.MarketValue, maxPlausible))
			continue
		}
		switch {
		case rec.Confidence < 0:
			rec.Confidence = 0
		case rec.Confidence > 1:
			rec.Confidence = 1
		}
		out = append(out, rec)
	}
	return out, warnings
}

// SanitizeOverrides normalizes override keys like SanitizeRecords and drops
// entries with a malformed identifier or an implausible value.
func SanitizeOverrides(overrides map[string]float64, maxPlausible float64) (map[string]float64, []string) {
	if len(overrides) == 0 {
		return nil, nil
	}
	if maxPlausible <= 0 {
		maxPlausible = DefaultMaxPlausibleValue
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]float64, len(overrides))
	var warnings []string
	for _, k := range keys {
		v := overrides[k]
		id := strings.ToUpper(strings.TrimSpace(k))
		if !extract.ValidISIN(id) {
			warnings = append(warnings, fmt.Sprintf("override %q: not a valid ISIN, ignored", k))
			continue
		}
		if v <= 0 || v > maxPlausible {
			warnings = append(warnings, fmt.Sprintf("override %s: value %g outside plausible range (0, %.0f], ignored",
				id, v, maxPlausible))
			continue
		}
		out[id] = v
	}
	return out, warnings
}
