// Package extract finds candidate identifiers, amounts, percentages and
// dates in normalized statement text.
package extract

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"finextract/internal/domain"
	"finextract/internal/normalize"
)

// DefaultContextRadius is the number of bytes kept on each side of a match.
const DefaultContextRadius = 500

// Extractor applies a PatternSet to text. It holds no per-document state.
type Extractor struct {
	patterns *PatternSet
	radius   int
	method   domain.SourceMethod
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithContextRadius sets the context window radius.
func WithContextRadius(r int) Option {
	return func(e *Extractor) {
		if r > 0 {
			e.radius = r
		}
	}
}

// WithMethod sets the source method stamped on produced fields.
func WithMethod(m domain.SourceMethod) Option {
	return func(e *Extractor) { e.method = m }
}

// New creates an Extractor. A nil pattern set selects the defaults.
func New(ps *PatternSet, opts ...Option) *Extractor {
	if ps == nil {
		ps = DefaultPatternSet()
	}
	e := &Extractor{patterns: ps, radius: DefaultContextRadius, method: domain.MethodTextRegex}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns every match of every pattern, ordered by position. Two
// patterns matching the same span of the same field type yield one field.
func (e *Extractor) Extract(text string) []domain.ExtractedField {
	var out []domain.ExtractedField
	for _, ft := range domain.AllFieldTypes {
		out = append(out, e.ExtractType(text, ft)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// ExtractType returns the matches for one field type, ordered by position.
func (e *Extractor) ExtractType(text string, ft domain.FieldType) []domain.ExtractedField {
	type span struct{ start, end int }
	seen := make(map[span]bool)

	var out []domain.ExtractedField
	for _, p := range e.patterns.Patterns(ft) {
		for _, loc := range p.Expr.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if len(loc) >= 4 && loc[2] >= 0 {
				start, end = loc[2], loc[3]
			}
			if start == end || seen[span{start, end}] || !rightBoundary(text, end) {
				continue
			}
			raw := text[start:end]
			parsed, ok := parseValue(ft, raw)
			if !ok {
				continue
			}
			seen[span{start, end}] = true

			ctxStart, ctxEnd := e.window(text, start, end)
			out = append(out, domain.ExtractedField{
				Type:          ft,
				RawText:       raw,
				ParsedValue:   parsed,
				Position:      start,
				End:           end,
				SourceContext: text[ctxStart:ctxEnd],
				ContextStart:  ctxStart,
				SourceMethod:  e.method,
				Pattern:       p.Name,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// window returns the context bounds around [start,end), kept on rune
// boundaries.
func (e *Extractor) window(text string, start, end int) (int, int) {
	lo := start - e.radius
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := end + e.radius
	if hi > len(text) {
		hi = len(text)
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return lo, hi
}

// rightBoundary rejects matches that continue into a longer token, such as
// the digits of an identifier or a longer number.
func rightBoundary(text string, end int) bool {
	if end == 0 || end >= len(text) {
		return true
	}
	last, _ := utf8.DecodeLastRuneInString(text[:end])
	if !isAlnum(last) {
		return true
	}
	next, size := utf8.DecodeRuneInString(text[end:])
	if isAlnum(next) {
		return false
	}
	if strings.ContainsRune("'.,", next) && end+size < len(text) {
		after, _ := utf8.DecodeRuneInString(text[end+size:])
		if unicode.IsDigit(after) {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func parseValue(ft domain.FieldType, raw string) (string, bool) {
	switch ft {
	case domain.FieldIdentifier:
		return raw, ValidISIN(raw)
	case domain.FieldMonetary:
		d, err := normalize.ParseAmount(raw)
		if err != nil {
			return "", false
		}
		return d.String(), true
	case domain.FieldPercentage:
		d, err := normalize.ParseAmount(strings.TrimSpace(strings.TrimSuffix(raw, "%")))
		if err != nil {
			return "", false
		}
		return d.String(), true
	case domain.FieldDate:
		t, ok := ParseDate(raw)
		if !ok {
			return "", false
		}
		return t.Format("2006-01-02"), true
	}
	return raw, true
}

var dateLayouts = []string{"2.1.2006", "2/1/2006", "2006-01-02", "2 Jan 2006", "2. Jan 2006"}

var germanMonths = strings.NewReplacer(
	"Januar", "Jan", "Februar", "Feb", "März", "Mar", "Mai", "May",
	"Juni", "Jun", "Juli", "Jul", "Okt", "Oct", "Dez", "Dec",
)

// ParseDate parses the date shapes recognised by the default patterns.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyzäABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		s = shortMonth(germanMonths.Replace(s))
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// shortMonth trims a month name to its three-letter form ("December" → "Dec").
func shortMonth(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		f = strings.TrimSuffix(f, ".")
		if len(f) > 3 && unicode.IsLetter(rune(f[0])) {
			fields[i] = f[:3]
		} else if len(f) == 3 && unicode.IsLetter(rune(f[0])) {
			fields[i] = f
		}
	}
	return strings.Join(fields, " ")
}
