// Package score assigns explainable confidence values to extracted fields.
// A score is a base per source method plus a sum of named boosts, capped
// at 1.0.
package score

import (
	"regexp"
	"strings"

	"finextract/internal/domain"
	"finextract/internal/extract"
)

// Boost names reported on scored fields.
const (
	BoostISINLabel      = "isin_label"
	BoostISINChecksum   = "isin_checksum"
	BoostMarketValue    = "market_value_keyword"
	BoostCurrencyNearby = "currency_nearby"
	BoostTabularLayout  = "tabular_layout"
	BoostCouponKeyword  = "coupon_keyword"
	BoostDateKeyword    = "date_keyword"
)

// DefaultNearRadius is how far around a field keyword checks look.
const DefaultNearRadius = 120

var (
	marketValueKeywords = []string{
		"market value", "marktwert", "kurswert", "valeur de marché", "valeur de marche",
		"countervalue", "gegenwert", "valuation", "value",
	}
	couponKeywords = []string{"coupon", "cpn", "zins", "interest", "rate"}
	dateKeywords   = []string{
		"maturity", "fälligkeit", "verfall", "échéance", "echeance", "expiry",
		"valuation date", "as of", "per ", "due",
	}

	reCurrencyCode = regexp.MustCompile(`\b[A-Z]{3}\b`)
	reISINLabel    = regexp.MustCompile(`(?i)\bISIN\b[\s:.#-]*$`)
)

// Weights holds the base score per source method and the boost weights.
type Weights struct {
	Base          map[domain.SourceMethod]float64
	ISINLabel     float64
	ISINChecksum  float64
	MarketValue   float64
	Currency      float64
	TabularLayout float64
	Coupon        float64
	DateKeyword   float64
}

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		Base: map[domain.SourceMethod]float64{
			domain.MethodTextRegex:   0.5,
			domain.MethodTableLayout: 0.6,
			domain.MethodOCRText:     0.4,
			domain.MethodVision:      0.5,
		},
		ISINLabel:     0.3,
		ISINChecksum:  0.15,
		MarketValue:   0.2,
		Currency:      0.15,
		TabularLayout: 0.1,
		Coupon:        0.15,
		DateKeyword:   0.15,
	}
}

// Assessment is the outcome of scoring one field.
type Assessment struct {
	Confidence float64  `json:"confidence"`
	Boosts     []string `json:"boosts"`
}

// Scorer scores fields against their context window.
type Scorer struct {
	weights    Weights
	nearRadius int
}

// New creates a Scorer. A non-positive nearRadius selects DefaultNearRadius.
func New(w Weights, nearRadius int) *Scorer {
	if nearRadius <= 0 {
		nearRadius = DefaultNearRadius
	}
	if w.Base == nil {
		w.Base = DefaultWeights().Base
	}
	return &Scorer{weights: w, nearRadius: nearRadius}
}

// Score computes the confidence of a single field.
func (s *Scorer) Score(f *domain.ExtractedField) Assessment {
	a := Assessment{Confidence: s.weights.Base[f.SourceMethod]}
	if a.Confidence == 0 {
		a.Confidence = 0.5
	}
	add := func(name string, w float64) {
		a.Confidence += w
		a.Boosts = append(a.Boosts, name)
	}

	before, after := s.near(f)
	near := strings.ToLower(before + f.RawText + after)

	switch f.Type {
	case domain.FieldIdentifier:
		if reISINLabel.MatchString(before) {
			add(BoostISINLabel, s.weights.ISINLabel)
		}
		if extract.ValidChecksum(f.ParsedValue) {
			add(BoostISINChecksum, s.weights.ISINChecksum)
		}
	case domain.FieldMonetary:
		if containsAny(near, marketValueKeywords) {
			add(BoostMarketValue, s.weights.MarketValue)
		}
		if hasCurrency(before + " " + after) {
			add(BoostCurrencyNearby, s.weights.Currency)
		}
		if s.tabular(f) {
			add(BoostTabularLayout, s.weights.TabularLayout)
		}
	case domain.FieldPercentage:
		if containsAny(near, couponKeywords) {
			add(BoostCouponKeyword, s.weights.Coupon)
		}
		if s.tabular(f) {
			add(BoostTabularLayout, s.weights.TabularLayout)
		}
	case domain.FieldDate:
		if containsAny(near, dateKeywords) {
			add(BoostDateKeyword, s.weights.DateKeyword)
		}
	}

	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return a
}

// Apply returns scored copies of fields; the input slice is left untouched.
func (s *Scorer) Apply(fields []domain.ExtractedField) []domain.ExtractedField {
	out := make([]domain.ExtractedField, len(fields))
	for i := range fields {
		f := fields[i]
		a := s.Score(&f)
		f.Confidence = a.Confidence
		f.Boosts = a.Boosts
		out[i] = f
	}
	return out
}

// near returns up to nearRadius bytes of context on each side of the field.
func (s *Scorer) near(f *domain.ExtractedField) (before, after string) {
	ctx := f.SourceContext
	rel := f.Position - f.ContextStart
	relEnd := f.End - f.ContextStart
	if rel < 0 || relEnd > len(ctx) || rel > relEnd {
		return "", ""
	}
	lo := rel - s.nearRadius
	if lo < 0 {
		lo = 0
	}
	hi := relEnd + s.nearRadius
	if hi > len(ctx) {
		hi = len(ctx)
	}
	return ctx[lo:rel], ctx[relEnd:hi]
}

// tabular reports whether the field's line has column separators.
func (s *Scorer) tabular(f *domain.ExtractedField) bool {
	ctx := f.SourceContext
	rel := f.Position - f.ContextStart
	if rel < 0 || rel > len(ctx) {
		return false
	}
	start := strings.LastIndexByte(ctx[:rel], '\n') + 1
	end := len(ctx)
	if i := strings.IndexByte(ctx[rel:], '\n'); i >= 0 {
		end = rel + i
	}
	line := ctx[start:end]
	return strings.Contains(line, "\t") || strings.Contains(line, "  ")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func hasCurrency(s string) bool {
	for _, code := range reCurrencyCode.FindAllString(s, -1) {
		if domain.IsKnownCurrency(code) {
			return true
		}
	}
	return false
}
