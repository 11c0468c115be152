package extract

import (
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"

	"finextract/internal/domain"
)

// Values are captured in group 1; the leading group only guards the left
// boundary because RE2 has no look-behind.
const (
	numGuard = `(?:^|[^0-9A-Za-z'.,])`
	months   = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec|Januar|Februar|März|Mai|Juni|Juli|Okt|Dez)[a-z]*\.?`
)

var defaultPatterns = map[domain.FieldType][]PatternSpec{
	domain.FieldIdentifier: {
		{Name: "isin", Regex: `(?:^|[^0-9A-Za-z])([A-Z]{2}[A-Z0-9]{9}[0-9])`},
	},
	domain.FieldMonetary: {
		{Name: "swiss_apostrophe", Regex: numGuard + `(\d{1,3}(?:'\d{3})+(?:\.\d{1,2})?)`},
		{Name: "comma_thousands", Regex: numGuard + `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?)`},
		{Name: "european", Regex: numGuard + `(\d{1,3}(?:\.\d{3})+,\d{1,2})`},
		{Name: "plain", Regex: numGuard + `(\d{5,}(?:\.\d{1,2})?|\d{1,4}\.\d{2})`},
	},
	domain.FieldPercentage: {
		{Name: "percent", Regex: numGuard + `(\d{1,3}(?:[.,]\d{1,4})? ?%)`},
	},
	domain.FieldDate: {
		{Name: "dmy", Regex: `(?:^|[^0-9.])((?:0?[1-9]|[12]\d|3[01])[./](?:0?[1-9]|1[0-2])[./](?:19|20)\d{2})`},
		{Name: "iso", Regex: `(?:^|[^0-9])((?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01]))`},
		{Name: "day_month_name", Regex: `(?:^|[^0-9])((?:0?[1-9]|[12]\d|3[01])\.? ` + months + ` (?:19|20)\d{2})`},
	},
}

// PatternSpec is the serialised form of one named pattern.
type PatternSpec struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

// Pattern is a compiled, named regular expression for one field type.
type Pattern struct {
	Name  string
	Field domain.FieldType
	Expr  *regexp.Regexp
}

// PatternSet holds an ordered list of patterns per field type.
type PatternSet struct {
	byType map[domain.FieldType][]Pattern
}

// DefaultPatternSet returns the built-in patterns.
func DefaultPatternSet() *PatternSet {
	ps, err := compile(defaultPatterns)
	if err != nil {
		panic(err)
	}
	return ps
}

// Patterns returns the ordered patterns for a field type.
func (ps *PatternSet) Patterns(ft domain.FieldType) []Pattern {
	return ps.byType[ft]
}

// LoadPatternSet reads a YAML pattern file. Field types the file does not
// list keep the built-in patterns. An empty path returns the defaults.
func LoadPatternSet(path string) (*PatternSet, error) {
	if path == "" {
		return DefaultPatternSet(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading pattern file %s: %v", domain.ErrInvalidConfig, path, err)
	}
	return ParsePatternSet(data)
}

// ParsePatternSet parses YAML of the form:
//
//	monetary:
//	  - name: swiss_apostrophe
//	    regex: '(\d{1,3}(?:''\d{3})+)'
func ParsePatternSet(data []byte) (*PatternSet, error) {
	var doc map[string][]PatternSpec
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing pattern file: %v", domain.ErrInvalidConfig, err)
	}

	specs := make(map[domain.FieldType][]PatternSpec, len(defaultPatterns))
	for ft, list := range defaultPatterns {
		specs[ft] = list
	}
	for key, list := range doc {
		ft := domain.FieldType(key)
		if _, ok := defaultPatterns[ft]; !ok {
			return nil, fmt.Errorf("%w: unknown field type %q", domain.ErrInvalidConfig, key)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: field type %q has no patterns", domain.ErrInvalidConfig, key)
		}
		specs[ft] = list
	}
	return compile(specs)
}

func compile(specs map[domain.FieldType][]PatternSpec) (*PatternSet, error) {
	ps := &PatternSet{byType: make(map[domain.FieldType][]Pattern, len(specs))}
	for ft, list := range specs {
		for i, def := range list {
			if def.Regex == "" {
				return nil, fmt.Errorf("%w: %s pattern %d has no regex", domain.ErrInvalidConfig, ft, i)
			}
			re, err := regexp.Compile(def.Regex)
			if err != nil {
				return nil, fmt.Errorf("%w: %s pattern %q: %v", domain.ErrInvalidConfig, ft, def.Name, err)
			}
			name := def.Name
			if name == "" {
				name = fmt.Sprintf("%s_%d", ft, i)
			}
			ps.byType[ft] = append(ps.byType[ft], Pattern{Name: name, Field: ft, Expr: re})
		}
	}
	return ps, nil
}
