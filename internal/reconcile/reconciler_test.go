package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finextract/internal/domain"
	"finextract/internal/reconcile"
)

func rec(id string, value, conf float64) domain.SecurityRecord {
	return domain.SecurityRecord{Identifier: id, MarketValue: value, Confidence: conf, Currency: "USD"}
}

func src(name string, records ...domain.SecurityRecord) domain.SourceRecords {
	return domain.SourceRecords{Source: name, Records: records}
}

func defaultReconciler() *reconcile.Reconciler {
	return reconcile.New(reconcile.DefaultMinAcceptance, reconcile.DefaultTolerance)
}

func TestReconcile_AgreementIsWeightedAverage(t *testing.T) {
	res := defaultReconciler().Reconcile([]domain.SourceRecords{
		src("text_regex", rec("XS2993414619", 1000, 0.9)),
		src("vision", rec("XS2993414619", 1100, 0.3)),
	}, nil)

	require.Len(t, res.Records, 1)
	assert.Equal(t, 1025.0, res.Records[0].MarketValue)
	assert.InDelta(t, 0.92, res.Records[0].Confidence, 1e-9)
	assert.Equal(t, "text_regex+vision", res.Records[0].Source)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 100.0, res.ConsensusScore)
	assert.Equal(t, 1025.0, res.TotalValue)
}

func TestReconcile_DisagreementEmitsOneConflict(t *testing.T) {
	res := defaultReconciler().Reconcile([]domain.SourceRecords{
		src("text_regex", rec("XS2993414619", 97700, 0.6), rec("CH0012032048", 500, 0.9)),
		src("vision", rec("XS2993414619", 1977000, 0.85), rec("CH0012032048", 510, 0.9)),
	}, nil)

	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, "XS2993414619", c.Identifier)
	assert.Equal(t, 1977000.0, c.ChosenValue)
	assert.Equal(t, "vision", c.ChosenSource)
	assert.Equal(t, map[string]float64{"text_regex": 97700, "vision": 1977000}, c.ValuesBySource)
	assert.NotEmpty(t, c.Rationale)

	require.Len(t, res.Records, 2)
	assert.Equal(t, 1977000.0, res.Records[0].MarketValue)
	assert.Equal(t, "vision", res.Records[0].Source)
	assert.Equal(t, 2, res.CandidateCount)
	assert.InDelta(t, 50.0, res.ConsensusScore, 1e-9)
}

func TestReconcile_SingleSourceBelowThresholdExcluded(t *testing.T) {
	res := defaultReconciler().Reconcile([]domain.SourceRecords{
		src("text_regex", rec("XS2993414619", 1000, 0.9), rec("US0378331005", 200, 0.5)),
		src("vision", rec("XS2993414619", 1000, 0.9), rec("DE0007164600", 300, 0.85)),
	}, nil)

	ids := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		ids = append(ids, r.Identifier)
	}
	assert.Equal(t, []string{"XS2993414619", "DE0007164600"}, ids)
	assert.Equal(t, []string{"US0378331005"}, res.Discarded)
	assert.Equal(t, 3, res.CandidateCount)
}

func TestReconcile_SingleParticipatingSourcePassesThrough(t *testing.T) {
	res := defaultReconciler().Reconcile([]domain.SourceRecords{
		src("text_regex", rec("XS2993414619", 1000, 0.5), rec("XS2993414619", 1200, 0.7)),
		src("vision"),
	}, nil)

	require.Len(t, res.Records, 1)
	assert.Equal(t, 1200.0, res.Records[0].MarketValue)
	assert.Equal(t, "text_regex", res.Records[0].Source)
	assert.Equal(t, []string{"text_regex"}, res.SourcesParticipated)
	assert.Empty(t, res.Discarded)
}

func TestReconcile_SelfMergeIsIdempotent(t *testing.T) {
	records := []domain.SecurityRecord{
		rec("XS2993414619", 97700, 0.8),
		rec("CH0012032048", 1234567.89, 0.65),
		rec("US0378331005", 0.07, 0.3),
	}
	res := defaultReconciler().Reconcile([]domain.SourceRecords{
		src("text_regex", records...),
		src("text_regex_copy", records...),
	}, nil)

	require.Len(t, res.Records, len(records))
	for i, r := range res.Records {
		assert.Equal(t, records[i].MarketValue, r.MarketValue)
	}
	assert.Empty(t, res.Conflicts)
}

func TestReconcile_IdentifierAppearsOnce(t *testing.T) {
	res := defaultReconciler().Reconcile([]domain.SourceRecords{
		src("a", rec("XS2993414619", 100, 0.9), rec("XS2993414619", 101, 0.95)),
		src("b", rec("XS2993414619", 102, 0.9)),
		src("c", rec("XS2993414619", 99, 0.9)),
	}, nil)
	require.Len(t, res.Records, 1)
}

func TestReconcile_OverrideResolvesConflict(t *testing.T) {
	res := defaultReconciler().Reconcile([]domain.SourceRecords{
		src("text_regex", rec("XS2993414619", 97700, 0.9)),
		src("vision", rec("XS2993414619", 1977000, 0.4)),
	}, map[string]float64{"XS2993414619": 99000})

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, domain.SourceOverride, res.Conflicts[0].ChosenSource)
	assert.Equal(t, 99000.0, res.Conflicts[0].ChosenValue)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 99000.0, res.Records[0].MarketValue)
	assert.Equal(t, domain.SourceOverride, res.Records[0].Source)
}

func TestReconcile_Empty(t *testing.T) {
	res := defaultReconciler().Reconcile(nil, nil)
	assert.Empty(t, res.Records)
	assert.Equal(t, 0, res.CandidateCount)
	assert.Equal(t, 100.0, res.ConsensusScore)
	assert.Equal(t, 0.0, res.TotalValue)
}

func TestReconcile_ToleranceBoundary(t *testing.T) {
	sources := []domain.SourceRecords{
		src("a", rec("XS2993414619", 900, 0.5)),
		src("b", rec("XS2993414619", 1000, 0.5)),
	}
	assert.Empty(t, reconcile.New(0.8, 0.10).Reconcile(sources, nil).Conflicts)
	assert.Len(t, reconcile.New(0.8, 0.05).Reconcile(sources, nil).Conflicts, 1)
}
