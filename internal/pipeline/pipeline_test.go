package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/pipeline"
	"finextract/internal/port"
	"finextract/internal/reconcile"
	"finextract/internal/source"
	"finextract/internal/validator"
	"finextract/mocks"
)

const statement = "ISIN: XS2993414619 Goldman Sachs notes, market value USD 97'700"

func newPipeline(timeout time.Duration, sources ...port.ExtractionSource) *pipeline.Pipeline {
	cfg := config.DefaultExtraction()
	return pipeline.New(
		source.NewTextSource(nil, &cfg, nil),
		sources,
		reconcile.New(cfg.MinAcceptance, cfg.AgreementTolerance),
		validator.NewEngine(nil, validator.DefaultConfig(), nil),
		timeout,
		nil,
	)
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestProcess_TextOnly(t *testing.T) {
	res, err := newPipeline(0).Process(context.Background(), &domain.Document{Name: "stmt.txt", Text: statement})
	require.NoError(t, err)

	require.Len(t, res.Reconciliation.Records, 1)
	rec := res.Reconciliation.Records[0]
	assert.Equal(t, "XS2993414619", rec.Identifier)
	assert.Equal(t, 97700.0, rec.MarketValue)
	assert.Equal(t, "text_regex", rec.Source)

	assert.Equal(t, "stmt.txt", res.DocumentName)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	assert.False(t, res.ProcessedAt.IsZero())
	assert.Equal(t, 1, res.FieldCounts[domain.FieldIdentifier])
	assert.GreaterOrEqual(t, res.FieldCounts[domain.FieldMonetary], 1)
	assert.True(t, hasWarning(res.Warnings, "no candidates found: percentage"))
	assert.True(t, hasWarning(res.Warnings, "no candidates found: date"))

	assert.Equal(t, 97700.0, res.Validation.TotalValue)
	assert.False(t, res.Validation.AccuracyAvailable)
	assert.Equal(t, domain.ValidationStatusValid, res.Validation.Status)
}

func TestProcess_ExpectedTotalGivesAccuracy(t *testing.T) {
	expected := 100_000.0
	res, err := newPipeline(0).Process(context.Background(), &domain.Document{Text: statement, ExpectedTotal: &expected})
	require.NoError(t, err)
	require.True(t, res.Validation.AccuracyAvailable)
	assert.InDelta(t, 97.7, *res.Validation.AccuracyPercent, 1e-9)
}

func TestProcess_SecondarySourceFailureDegrades(t *testing.T) {
	vision := new(mocks.MockExtractionSource)
	vision.On("Name").Return("vision")
	vision.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	res, err := newPipeline(0, vision).Process(context.Background(), &domain.Document{Text: statement})
	require.NoError(t, err)
	require.Len(t, res.Reconciliation.Records, 1)
	assert.Equal(t, []string{"text_regex"}, res.Reconciliation.SourcesParticipated)
	assert.True(t, hasWarning(res.Warnings, "vision: external source unavailable: connection refused"))
	assert.True(t, res.Degraded)
	vision.AssertExpectations(t)
}

func TestProcess_SecondarySourceTimeoutDegrades(t *testing.T) {
	vision := new(mocks.MockExtractionSource)
	vision.On("Name").Return("vision")
	vision.On("Extract", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	start := time.Now()
	res, err := newPipeline(20*time.Millisecond, vision).Process(context.Background(), &domain.Document{Text: statement})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, res.Reconciliation.Records, 1)
	assert.True(t, hasWarning(res.Warnings, "external source unavailable"))
	assert.True(t, res.Degraded)
}

func TestProcess_SecondarySourceConflict(t *testing.T) {
	vision := new(mocks.MockExtractionSource)
	vision.On("Name").Return("vision")
	vision.On("Extract", mock.Anything, mock.Anything).Return([]domain.SecurityRecord{
		{Identifier: "XS2993414619", MarketValue: 1_977_000, Confidence: 0.99, Source: "vision"},
	}, nil)

	res, err := newPipeline(0, vision).Process(context.Background(), &domain.Document{Text: statement})
	require.NoError(t, err)
	require.Len(t, res.Reconciliation.Conflicts, 1)
	c := res.Reconciliation.Conflicts[0]
	assert.Equal(t, "vision", c.ChosenSource)
	assert.Equal(t, 97700.0, c.ValuesBySource["text_regex"])
	assert.Equal(t, 1_977_000.0, c.ValuesBySource["vision"])
	assert.Equal(t, 0.0, res.Reconciliation.ConsensusScore)
	assert.Equal(t, domain.ValidationStatusWarning, res.Validation.Status)
	assert.False(t, res.Degraded)
}

func invalidSecondaryRecords() []domain.SecurityRecord {
	return []domain.SecurityRecord{
		{Identifier: "NOT-AN-ISIN", MarketValue: -500_000, Confidence: 0.95},
		{Identifier: "xs2993414619", MarketValue: 97_700, Confidence: 0.95},
		{Identifier: "CH0012032048", MarketValue: 5e12, Confidence: 0.95},
	}
}

func assertOnlyValidRecordSurvives(t *testing.T, res *domain.ExtractionResult) {
	t.Helper()
	require.Len(t, res.Reconciliation.Records, 1)
	rec := res.Reconciliation.Records[0]
	assert.Equal(t, "XS2993414619", rec.Identifier)
	assert.Equal(t, 97_700.0, rec.MarketValue)
	assert.Equal(t, "text_regex+vision", rec.Source)
	assert.Equal(t, 97_700.0, res.Validation.TotalValue)
	assert.NotEqual(t, domain.ValidationStatusInvalid, res.Validation.Status)
	assert.True(t, hasWarning(res.Warnings, `vision: "NOT-AN-ISIN": not a valid ISIN`))
	assert.True(t, hasWarning(res.Warnings, "vision: CH0012032048: market value"))
}

func TestProcess_RemoteRecordsAreSanitized(t *testing.T) {
	vision := new(mocks.MockExtractionSource)
	vision.On("Name").Return("vision")
	vision.On("Extract", mock.Anything, mock.Anything).Return(invalidSecondaryRecords(), nil)

	res, err := newPipeline(0, vision).Process(context.Background(), &domain.Document{Text: statement})
	require.NoError(t, err)
	assertOnlyValidRecordSurvives(t, res)
}

func TestProcess_DocumentSecondaryRecordsAreSanitized(t *testing.T) {
	supplied := invalidSecondaryRecords()
	res, err := newPipeline(0).Process(context.Background(), &domain.Document{
		Text:             statement,
		SecondarySources: []domain.SourceRecords{{Source: "vision", Records: supplied}},
	})
	require.NoError(t, err)
	assertOnlyValidRecordSurvives(t, res)
	assert.Equal(t, "xs2993414619", supplied[1].Identifier)
}

func TestProcess_OverridesAreSanitized(t *testing.T) {
	res, err := newPipeline(0).Process(context.Background(), &domain.Document{
		Text: statement,
		Overrides: map[string]float64{
			"xs2993414619": 98_000,
			"CH0012032048": -1,
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Reconciliation.Records, 1)
	assert.Equal(t, 98_000.0, res.Reconciliation.Records[0].MarketValue)
	assert.Equal(t, domain.SourceOverride, res.Reconciliation.Records[0].Source)
	assert.True(t, hasWarning(res.Warnings, "override CH0012032048"))
}

func TestProcess_DuplicateSourceNamesAreSuffixed(t *testing.T) {
	res, err := newPipeline(0).Process(context.Background(), &domain.Document{
		Text: statement,
		SecondarySources: []domain.SourceRecords{
			{Source: "text_regex", Records: []domain.SecurityRecord{{Identifier: "XS2993414619", MarketValue: 1_977_000, Confidence: 0.9}}},
			{Source: "text_regex", Records: []domain.SecurityRecord{{Identifier: "XS2993414619", MarketValue: 2_500_000, Confidence: 0.7}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"text_regex", "text_regex_2", "text_regex_3"}, res.Reconciliation.SourcesParticipated)
	require.Len(t, res.Reconciliation.Conflicts, 1)
	values := res.Reconciliation.Conflicts[0].ValuesBySource
	assert.Len(t, values, 3)
	assert.Equal(t, 97_700.0, values["text_regex"])
	assert.Equal(t, 1_977_000.0, values["text_regex_2"])
	assert.Equal(t, 2_500_000.0, values["text_regex_3"])
	assert.True(t, hasWarning(res.Warnings, `renamed to "text_regex_2"`))
}

func TestProcess_DocumentSecondaryRecordsAreReconciled(t *testing.T) {
	res, err := newPipeline(0).Process(context.Background(), &domain.Document{
		Text: statement,
		SecondarySources: []domain.SourceRecords{{
			Source:  "vision",
			Records: []domain.SecurityRecord{{Identifier: "XS2993414619", MarketValue: 97_000, Confidence: 0.9}},
		}},
	})
	require.NoError(t, err)
	require.Len(t, res.Reconciliation.Records, 1)
	assert.Equal(t, "text_regex+vision", res.Reconciliation.Records[0].Source)
	assert.Empty(t, res.Reconciliation.Conflicts)
	assert.Equal(t, []string{"text_regex", "vision"}, res.Reconciliation.SourcesParticipated)
}

func TestProcess_EmptyTextIsNotAnError(t *testing.T) {
	for _, text := range []string{"", "   \n\t"} {
		res, err := newPipeline(0).Process(context.Background(), &domain.Document{Text: text})
		require.NoError(t, err)
		assert.Empty(t, res.Reconciliation.Records)
		assert.Equal(t, 0.0, res.Validation.TotalValue)
		assert.True(t, hasWarning(res.Warnings, "malformed input"))
	}
}

func TestProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPipeline(0).Process(ctx, &domain.Document{Text: statement})
	assert.ErrorIs(t, err, context.Canceled)
}
