// Package assemble turns scored fields into one SecurityRecord per
// identifier.
package assemble

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"finextract/internal/domain"
	"finextract/internal/extract"
)

// DefaultMaxPlausibleValue is the upper bound for a single position value.
const DefaultMaxPlausibleValue = 1e9

const maxNameLen = 120

var (
	reCurrency  = regexp.MustCompile(`\b[A-Z]{3}\b`)
	reNameLabel = regexp.MustCompile(`(?i)[\s:.#-]*\bISIN\b[\s:.#-]*$`)
	reISINToken = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{9}[0-9]\b`)
)

var categoryKeywords = []struct {
	category domain.SecurityCategory
	keywords []string
}{
	{domain.CategoryStructured, []string{"structured", "certificate", "zertifikat", "autocall", "barrier", "reverse convertible", "tracker"}},
	{domain.CategoryMoneyMkt, []string{"money market", "call deposit", "time deposit", "festgeld", "geldmarkt"}},
	{domain.CategoryFund, []string{"fund", "fonds", "etf", "sicav", "ucits"}},
	{domain.CategoryBond, []string{"bond", "notes", "anleihe", "obligation", "coupon", "maturity", "%"}},
	{domain.CategoryEquity, []string{"shares", "share", "aktie", "equity", "registered", "ordinary", "common stock"}},
}

// Assembler builds records from the scored fields of one text pass.
type Assembler struct {
	maxPlausible  float64
	contextRadius int
}

// New creates an Assembler. Non-positive arguments select the defaults.
func New(maxPlausible float64, contextRadius int) *Assembler {
	if maxPlausible <= 0 {
		maxPlausible = DefaultMaxPlausibleValue
	}
	if contextRadius <= 0 {
		contextRadius = extract.DefaultContextRadius
	}
	return &Assembler{maxPlausible: maxPlausible, contextRadius: contextRadius}
}

// Result is the output of Assemble.
type Result struct {
	Records  []domain.SecurityRecord
	Warnings []string
}

// Assemble builds records from fields extracted out of text. Records are
// ordered by the first occurrence of their identifier.
func (a *Assembler) Assemble(text string, fields []domain.ExtractedField, source string) Result {
	var ids, values, pcts, dates []domain.ExtractedField
	for _, f := range fields {
		switch f.Type {
		case domain.FieldIdentifier:
			ids = append(ids, f)
		case domain.FieldMonetary:
			values = append(values, f)
		case domain.FieldPercentage:
			pcts = append(pcts, f)
		case domain.FieldDate:
			dates = append(dates, f)
		}
	}
	sort.SliceStable(ids, func(i, j int) bool { return ids[i].Position < ids[j].Position })
	sort.SliceStable(values, func(i, j int) bool { return values[i].Position < values[j].Position })
	values = dropOverlapping(values, pcts, dates)

	var res Result
	index := make(map[string]int)
	for i := range ids {
		id := &ids[i]
		if !extract.ValidISIN(id.ParsedValue) {
			continue
		}
		regionEnd := id.End + a.contextRadius
		if i+1 < len(ids) && ids[i+1].Position < regionEnd {
			regionEnd = ids[i+1].Position
		}
		if regionEnd > len(text) {
			regionEnd = len(text)
		}

		rec, warn := a.build(text, id, regionEnd, values, pcts, dates)
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
			continue
		}
		rec.Source = source

		if at, ok := index[rec.Identifier]; ok {
			if rec.Confidence > res.Records[at].Confidence {
				res.Records[at] = rec
			}
			continue
		}
		index[rec.Identifier] = len(res.Records)
		res.Records = append(res.Records, rec)
	}
	return res
}

func (a *Assembler) build(
	text string,
	id *domain.ExtractedField,
	regionEnd int,
	values, pcts, dates []domain.ExtractedField,
) (domain.SecurityRecord, string) {
	var (
		best      *domain.ExtractedField
		bestValue float64
		rejected  int
	)
	for i := range values {
		v := &values[i]
		if v.Position < id.End || v.End > regionEnd {
			continue
		}
		amount, err := decimal.NewFromString(v.ParsedValue)
		if err != nil {
			continue
		}
		f, _ := amount.Float64()
		if f <= 0 || f > a.maxPlausible {
			rejected++
			continue
		}
		// Ties keep the nearest candidate.
		if best == nil || v.Confidence > best.Confidence {
			best, bestValue = v, f
		}
	}
	if best == nil {
		if rejected > 0 {
			return domain.SecurityRecord{}, fmt.Sprintf("%s: market value outside plausible range (0, %.0f]", id.ParsedValue, a.maxPlausible)
		}
		return domain.SecurityRecord{}, fmt.Sprintf("%s: no market value found", id.ParsedValue)
	}

	rec := domain.SecurityRecord{
		Identifier:  id.ParsedValue,
		Name:        nameBefore(text, id.Position),
		MarketValue: bestValue,
		Currency:    currencyNear(text, lineStart(text, id.Position), regionEnd, best.Position),
		Confidence:  (id.Confidence + best.Confidence) / 2,
	}

	if p := strongest(pcts, id.End, regionEnd); p != nil {
		if rate, err := decimal.NewFromString(p.ParsedValue); err == nil {
			r, _ := rate.Float64()
			rec.CouponRate = &r
		}
	}
	if d := strongest(dates, id.End, regionEnd); d != nil {
		rec.MaturityDate = d.ParsedValue
	}
	lineEnd := regionEnd
	if i := strings.IndexByte(text[id.End:regionEnd], '\n'); i >= 0 {
		lineEnd = id.End + i
	}
	rec.Category = classify(rec.Name + " " + text[id.End:lineEnd])
	return rec, ""
}

// dropOverlapping removes monetary fields whose span intersects a
// percentage or date.
func dropOverlapping(values []domain.ExtractedField, others ...[]domain.ExtractedField) []domain.ExtractedField {
	out := values[:0:0]
outer:
	for i := range values {
		for _, group := range others {
			for j := range group {
				if values[i].Overlaps(&group[j]) {
					continue outer
				}
			}
		}
		out = append(out, values[i])
	}
	return out
}

// strongest returns the highest-confidence field inside [start, end).
func strongest(fields []domain.ExtractedField, start, end int) *domain.ExtractedField {
	var best *domain.ExtractedField
	for i := range fields {
		f := &fields[i]
		if f.Position < start || f.End > end {
			continue
		}
		if best == nil || f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}

// currencyNear returns the known currency code in text[start:end] closest
// to pos.
func currencyNear(text string, start, end, pos int) string {
	best, bestDist := "", -1
	for _, loc := range reCurrency.FindAllStringIndex(text[start:end], -1) {
		code := text[start+loc[0] : start+loc[1]]
		if !domain.IsKnownCurrency(code) {
			continue
		}
		dist := pos - (start + loc[1])
		if dist < 0 {
			dist = start + loc[0] - pos
			if dist < 0 {
				dist = -dist
			}
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = code, dist
		}
	}
	return best
}

func lineStart(text string, pos int) int {
	return strings.LastIndexByte(text[:pos], '\n') + 1
}

// nameBefore takes the text preceding the identifier on its line, falling
// back to the previous non-empty line.
func nameBefore(text string, pos int) string {
	start := lineStart(text, pos)
	if name := cleanName(text[start:pos]); name != "" {
		return name
	}
	rest := text[:start]
	for rest != "" {
		rest = strings.TrimRight(rest, "\n")
		ls := strings.LastIndexByte(rest, '\n') + 1
		if reISINToken.MatchString(rest[ls:]) {
			return ""
		}
		if name := cleanName(rest[ls:]); name != "" {
			return name
		}
		if strings.TrimSpace(rest[ls:]) != "" {
			return ""
		}
		rest = rest[:ls]
	}
	return ""
}

func cleanName(s string) string {
	s = reNameLabel.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " :;,-|")
	if !strings.ContainsFunc(s, unicode.IsLetter) {
		return ""
	}
	if r := []rune(s); len(r) > maxNameLen {
		s = strings.TrimSpace(string(r[:maxNameLen]))
	}
	return s
}

func classify(s string) domain.SecurityCategory {
	s = strings.ToLower(s)
	for _, c := range categoryKeywords {
		for _, k := range c.keywords {
			if strings.Contains(s, k) {
				return c.category
			}
		}
	}
	return domain.CategoryOther
}
