// Package reconcile merges the record sets of independent extraction sources
// into one record per identifier, tracking disagreements as conflicts.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"finextract/internal/domain"
)

// Defaults for a Reconciler.
const (
	DefaultMinAcceptance = 0.8
	DefaultTolerance     = 0.10

	// agreementBoost closes this share of the gap to 1.0 when sources agree.
	agreementBoost = 0.2
)

// Reconciler merges SourceRecords. It is stateless and safe for concurrent use.
type Reconciler struct {
	minAcceptance float64
	tolerance     float64
}

// New creates a Reconciler. Negative arguments select the defaults.
func New(minAcceptance, tolerance float64) *Reconciler {
	if minAcceptance < 0 {
		minAcceptance = DefaultMinAcceptance
	}
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	return &Reconciler{minAcceptance: minAcceptance, tolerance: tolerance}
}

type candidate struct {
	source string
	record domain.SecurityRecord
}

// Reconcile merges sources in order. Overrides map an identifier to an
// explicit value that wins over every source.
func (r *Reconciler) Reconcile(sources []domain.SourceRecords, overrides map[string]float64) domain.ReconciliationResult {
	res := domain.ReconciliationResult{
		Records:             []domain.SecurityRecord{},
		Conflicts:           []domain.Conflict{},
		SourcesParticipated: []string{},
	}

	var order []string
	groups := make(map[string][]candidate)
	for _, src := range sources {
		if len(src.Records) == 0 {
			continue
		}
		res.SourcesParticipated = append(res.SourcesParticipated, src.Source)
		for _, rec := range dedupe(src.Records) {
			if _, ok := groups[rec.Identifier]; !ok {
				order = append(order, rec.Identifier)
			}
			groups[rec.Identifier] = append(groups[rec.Identifier], candidate{source: src.Source, record: rec})
		}
	}
	multiSource := len(res.SourcesParticipated) > 1
	res.CandidateCount = len(order)

	total := decimal.Zero
	for _, id := range order {
		cands := groups[id]
		override, hasOverride := overrides[id]

		var (
			rec      domain.SecurityRecord
			conflict *domain.Conflict
		)
		switch {
		case len(cands) == 1:
			if multiSource && !hasOverride && cands[0].record.Confidence < r.minAcceptance {
				res.Discarded = append(res.Discarded, id)
				continue
			}
			rec = cands[0].record
			if rec.Source == "" {
				rec.Source = cands[0].source
			}
		default:
			rec, conflict = r.merge(id, cands)
		}

		if hasOverride {
			rec.MarketValue = override
			rec.Source = domain.SourceOverride
			if conflict != nil {
				conflict.ChosenValue = override
				conflict.ChosenSource = domain.SourceOverride
				conflict.Rationale += "; resolved by override"
			}
		}
		if conflict != nil {
			res.Conflicts = append(res.Conflicts, *conflict)
		}

		res.Records = append(res.Records, rec)
		total = total.Add(decimal.NewFromFloat(rec.MarketValue))
	}

	res.TotalValue = total.InexactFloat64()
	res.ConsensusScore = 100
	if res.CandidateCount > 0 {
		res.ConsensusScore = (1 - float64(len(res.Conflicts))/float64(res.CandidateCount)) * 100
	}
	return res
}

// merge combines candidates for one identifier found in several sources.
func (r *Reconciler) merge(id string, cands []candidate) (domain.SecurityRecord, *domain.Conflict) {
	best := 0
	for i := range cands {
		if cands[i].record.Confidence > cands[best].record.Confidence {
			best = i
		}
	}

	lo, hi := cands[0].record.MarketValue, cands[0].record.MarketValue
	for _, c := range cands[1:] {
		if c.record.MarketValue < lo {
			lo = c.record.MarketValue
		}
		if c.record.MarketValue > hi {
			hi = c.record.MarketValue
		}
	}

	spread := 0.0
	if hi > 0 {
		spread = (hi - lo) / hi
	}
	if spread <= r.tolerance {
		rec := cands[best].record
		rec.MarketValue = weightedAverage(cands)
		rec.Confidence = boost(rec.Confidence)
		rec.Source = joinSources(cands)
		return rec, nil
	}

	values := make(map[string]float64, len(cands))
	for _, c := range cands {
		values[c.source] = c.record.MarketValue
	}
	chosen := cands[best]
	rec := chosen.record
	rec.Source = chosen.source
	return rec, &domain.Conflict{
		Identifier:     id,
		ValuesBySource: values,
		ChosenValue:    rec.MarketValue,
		ChosenSource:   chosen.source,
		Rationale: fmt.Sprintf("values differ by %.2f%% (tolerance %.2f%%); kept %s with highest confidence %.2f",
			spread*100, r.tolerance*100, chosen.source, rec.Confidence),
	}
}

// weightedAverage is Σ(v·c)/Σ(c) in decimal arithmetic, so identical inputs
// return their value exactly. Zero total confidence falls back to the mean.
func weightedAverage(cands []candidate) float64 {
	num, den := decimal.Zero, decimal.Zero
	sum := decimal.Zero
	for _, c := range cands {
		v := decimal.NewFromFloat(c.record.MarketValue)
		w := decimal.NewFromFloat(c.record.Confidence)
		num = num.Add(v.Mul(w))
		den = den.Add(w)
		sum = sum.Add(v)
	}
	if den.IsZero() {
		return sum.Div(decimal.NewFromInt(int64(len(cands)))).InexactFloat64()
	}
	return num.Div(den).InexactFloat64()
}

func boost(c float64) float64 {
	if c >= 1 {
		return 1
	}
	return c + (1-c)*agreementBoost
}

func joinSources(cands []candidate) string {
	names := make([]string, 0, len(cands))
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		if !seen[c.source] {
			seen[c.source] = true
			names = append(names, c.source)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}

// dedupe keeps the most confident record per identifier within one source,
// preserving first-seen order.
func dedupe(records []domain.SecurityRecord) []domain.SecurityRecord {
	index := make(map[string]int, len(records))
	out := make([]domain.SecurityRecord, 0, len(records))
	for _, rec := range records {
		if at, ok := index[rec.Identifier]; ok {
			if rec.Confidence > out[at].Confidence {
				out[at] = rec
			}
			continue
		}
		index[rec.Identifier] = len(out)
		out = append(out, rec)
	}
	return out
}
