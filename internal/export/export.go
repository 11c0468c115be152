// Package export renders extraction results as JSON, CSV or XLSX files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"finextract/internal/domain"
)

// ParseFormat validates an export format name. An empty name selects JSON.
func ParseFormat(s string) (domain.ExportFormat, error) {
	f := domain.ExportFormat(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return domain.ExportJSON, nil
	}
	if _, ok := domain.ExportContentTypes[f]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, s)
	}
	return f, nil
}

// Write renders res in format to w.
func Write(w io.Writer, format domain.ExportFormat, res *domain.ExtractionResult) error {
	switch format {
	case domain.ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case domain.ExportCSV:
		if _, err := w.Write(BOM); err != nil {
			return err
		}
		cw := NewWriter(w)
		if err := cw.WriteHeader(); err != nil {
			return err
		}
		if err := cw.WriteResult(res); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	case domain.ExportXLSX:
		return WriteXLSX(w, res)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a document name for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "extraction"
	}
	return s
}

// BuildFilename returns {sanitized_document_name}_{YYYY-MM-DD}.{format}.
func BuildFilename(documentName string, format domain.ExportFormat, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", SanitizeFilename(documentName), at.Format("2006-01-02"), format)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
