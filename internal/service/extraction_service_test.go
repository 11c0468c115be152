package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finextract/internal/domain"
	"finextract/internal/port"
	"finextract/internal/service"
	"finextract/internal/storage"
	"finextract/mocks"
)

type fixture struct {
	processor *mocks.MockProcessor
	runs      *mocks.MockRunRepo
	notifier  *mocks.MockNotifier
	store     *mocks.MockObjectStorage
}

func newFixture() *fixture {
	return &fixture{
		processor: new(mocks.MockProcessor),
		runs:      new(mocks.MockRunRepo),
		notifier:  new(mocks.MockNotifier),
		store:     new(mocks.MockObjectStorage),
	}
}

func (f *fixture) service(withArchive bool) service.ExtractionService {
	deps := service.ExtractionDeps{
		Processor:     f.processor,
		Runs:          f.runs,
		Notifier:      f.notifier,
		AccuracyFloor: 98,
	}
	if withArchive {
		deps.Archive = storage.NewArchive(f.store, "bucket", "runs", nil)
	}
	return service.NewExtractionService(deps)
}

func validResult() *domain.ExtractionResult {
	return &domain.ExtractionResult{
		RunID:        uuid.New(),
		DocumentName: "stmt.txt",
		Reconciliation: domain.ReconciliationResult{
			Records:        []domain.SecurityRecord{{Identifier: "XS2993414619", MarketValue: 97_700, Confidence: 0.9}},
			ConsensusScore: 100,
		},
		Validation: domain.ValidationReport{
			TotalValue: 97_700,
			Status:     domain.ValidationStatusValid,
		},
		ProcessedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestExtract_PersistsAndCaches(t *testing.T) {
	f := newFixture()
	svc := f.service(false)
	result := validResult()

	f.processor.On("Process", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool {
		return d.Name == "stmt.txt" && d.Text == "ISIN XS2993414619 USD 97'700"
	})).Return(result, nil).Once()
	f.runs.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRun) bool {
		return r.ID == result.RunID && r.RecordCount == 1 && r.Status == domain.ValidationStatusValid &&
			r.TotalValue == 97_700 && len(r.ContentHash) == 64 && r.Result != ""
	})).Return(nil).Once()

	req := &service.ExtractRequest{DocumentName: "stmt.txt", Text: "ISIN XS2993414619 USD 97'700"}
	got, err := svc.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, got.RunID)

	again, err := svc.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, got, again)

	f.processor.AssertExpectations(t)
	f.runs.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "NotifyReview", mock.Anything, mock.Anything)
}

func TestExtract_DifferentInputsAreNotShared(t *testing.T) {
	f := newFixture()
	svc := f.service(false)
	f.processor.On("Process", mock.Anything, mock.Anything).Return(validResult(), nil).Twice()
	f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Extract(context.Background(), &service.ExtractRequest{Text: "a"})
	require.NoError(t, err)
	expected := 1.0
	_, err = svc.Extract(context.Background(), &service.ExtractRequest{Text: "a", ExpectedTotal: &expected})
	require.NoError(t, err)
	f.processor.AssertNumberOfCalls(t, "Process", 2)
}

func TestExtract_DegradedResultIsNotCached(t *testing.T) {
	f := newFixture()
	svc := f.service(false)
	degraded := validResult()
	degraded.Degraded = true
	degraded.Warnings = []string{"vision: external source unavailable: timeout"}
	full := validResult()

	f.processor.On("Process", mock.Anything, mock.Anything).Return(degraded, nil).Once()
	f.processor.On("Process", mock.Anything, mock.Anything).Return(full, nil).Once()
	f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)

	req := &service.ExtractRequest{DocumentName: "stmt.txt", Text: "ISIN XS2993414619 USD 97'700"}
	first, err := svc.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Degraded)

	second, err := svc.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, full, second)

	third, err := svc.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, full, third)
	f.processor.AssertNumberOfCalls(t, "Process", 2)
}

func TestExtract_NotifiesReviewers(t *testing.T) {
	f := newFixture()
	svc := f.service(false)
	result := validResult()
	accuracy := 90.0
	result.Validation.AccuracyAvailable = true
	result.Validation.AccuracyPercent = &accuracy
	result.Validation.FlaggedOutliers = []domain.Outlier{{Identifier: "XS2993414619"}}
	result.Validation.Status = domain.ValidationStatusWarning

	f.processor.On("Process", mock.Anything, mock.Anything).Return(result, nil)
	f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("NotifyReview", mock.Anything, mock.MatchedBy(func(n port.ReviewNotice) bool {
		return n.RunID == result.RunID && len(n.Reasons) == 2 && *n.Accuracy == 90
	})).Return(errors.New("ses down"))

	_, err := svc.Extract(context.Background(), &service.ExtractRequest{Text: "x"})
	require.NoError(t, err, "notification failures are not fatal")
	f.notifier.AssertExpectations(t)
}

func TestExtract_ArchivesRun(t *testing.T) {
	f := newFixture()
	svc := f.service(true)
	result := validResult()

	f.processor.On("Process", mock.Anything, mock.Anything).Return(result, nil)
	f.store.On("Put", mock.Anything, mock.Anything).Return(&port.PutResult{}, nil).Twice()
	f.runs.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRun) bool {
		return r.ArchiveKey == "runs/"+result.RunID.String()+"/result.json"
	})).Return(nil)

	_, err := svc.Extract(context.Background(), &service.ExtractRequest{Text: "x"})
	require.NoError(t, err)
	f.runs.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func TestExtract_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	svc := f.service(true)

	f.processor.On("Process", mock.Anything, mock.Anything).Return(validResult(), nil)
	f.store.On("Put", mock.Anything, mock.Anything).Return(nil, errors.New("bucket missing"))
	f.runs.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ExtractionRun) bool {
		return r.ArchiveKey == ""
	})).Return(nil)

	_, err := svc.Extract(context.Background(), &service.ExtractRequest{Text: "x"})
	require.NoError(t, err)
	f.runs.AssertExpectations(t)
}

func TestExtract_SaveFailureRemovesArchive(t *testing.T) {
	f := newFixture()
	svc := f.service(true)
	result := validResult()
	prefix := "runs/" + result.RunID.String()

	f.processor.On("Process", mock.Anything, mock.Anything).Return(result, nil)
	f.store.On("Put", mock.Anything, mock.Anything).Return(&port.PutResult{}, nil).Twice()
	f.store.On("Delete", mock.Anything, "bucket", prefix+"/input.txt").Return(nil).Once()
	f.store.On("Delete", mock.Anything, "bucket", prefix+"/result.json").Return(nil).Once()
	f.runs.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := svc.Extract(context.Background(), &service.ExtractRequest{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving run")
	f.store.AssertExpectations(t)
}

func TestExtract_Errors(t *testing.T) {
	f := newFixture()
	svc := f.service(false)
	f.processor.On("Process", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool { return d.Text == "cancel" })).
		Return(nil, context.Canceled)
	f.processor.On("Process", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool { return d.Text == "db" })).
		Return(validResult(), nil)
	f.runs.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := svc.Extract(context.Background(), &service.ExtractRequest{Text: "cancel"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = svc.Extract(context.Background(), &service.ExtractRequest{Text: "db"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving run")
}

func TestExtractFromStorage(t *testing.T) {
	f := newFixture()
	svc := f.service(true)

	f.store.On("Get", mock.Anything, "bucket", "inbox/q3.txt").Return([]byte("ISIN XS2993414619"), nil)
	f.store.On("Put", mock.Anything, mock.Anything).Return(&port.PutResult{}, nil)
	f.processor.On("Process", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool {
		return d.Name == "q3.txt" && d.Text == "ISIN XS2993414619"
	})).Return(validResult(), nil)
	f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.ExtractFromStorage(context.Background(), &service.ExtractFromStorageRequest{Key: "inbox/q3.txt"})
	require.NoError(t, err)
	f.processor.AssertExpectations(t)
}

func TestExtractFromStorage_Errors(t *testing.T) {
	f := newFixture()

	_, err := f.service(true).ExtractFromStorage(context.Background(), &service.ExtractFromStorageRequest{Key: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.service(false).ExtractFromStorage(context.Background(), &service.ExtractFromStorageRequest{Key: "inbox/q3.txt"})
	assert.ErrorIs(t, err, domain.ErrStorageDisabled)
}

func TestGetResultAndExport(t *testing.T) {
	f := newFixture()
	svc := f.service(false)
	result := validResult()
	payload, err := json.Marshal(result)
	require.NoError(t, err)

	f.runs.On("GetByID", mock.Anything, result.RunID).Return(&domain.ExtractionRun{
		ID: result.RunID, Result: string(payload),
	}, nil)
	missing := uuid.New()
	f.runs.On("GetByID", mock.Anything, missing).Return(nil, domain.ErrRunNotFound)

	got, err := svc.GetResult(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "stmt.txt", got.DocumentName)
	assert.Equal(t, 97_700.0, got.Validation.TotalValue)

	out, err := svc.Export(context.Background(), result.RunID, domain.ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "stmt_txt_2026-10-19.csv", out.Filename)
	assert.Equal(t, "text/csv", out.ContentType)
	assert.Contains(t, string(out.Data), "XS2993414619")

	_, err = svc.Export(context.Background(), result.RunID, domain.ExportFormat("pdf"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = svc.GetResult(context.Background(), missing)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestArchiveURL(t *testing.T) {
	f := newFixture()
	svc := f.service(true)
	archived, bare, missing := uuid.New(), uuid.New(), uuid.New()
	f.runs.On("GetByID", mock.Anything, archived).Return(&domain.ExtractionRun{ID: archived, ArchiveKey: "runs/a/result.json"}, nil)
	f.runs.On("GetByID", mock.Anything, bare).Return(&domain.ExtractionRun{ID: bare}, nil)
	f.runs.On("GetByID", mock.Anything, missing).Return(nil, domain.ErrRunNotFound)
	f.store.On("PresignGet", mock.Anything, "bucket", "runs/a/result.json", service.DefaultPresignTTL).
		Return("https://example.test/signed", nil)

	before := time.Now().UTC()
	link, err := svc.ArchiveURL(context.Background(), archived)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/signed", link.URL)
	assert.False(t, link.ExpiresAt.Before(before.Add(service.DefaultPresignTTL)))

	_, err = svc.ArchiveURL(context.Background(), bare)
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)

	_, err = svc.ArchiveURL(context.Background(), missing)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	_, err = f.service(false).ArchiveURL(context.Background(), archived)
	assert.ErrorIs(t, err, domain.ErrStorageDisabled)
}

func TestListRuns(t *testing.T) {
	f := newFixture()
	f.runs.On("List", mock.Anything, 0, 20).Return([]domain.ExtractionRun{{DocumentName: "a"}}, 1, nil)

	runs, total, err := f.service(false).ListRuns(context.Background(), 0, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, runs, 1)

	noRepo := service.NewExtractionService(service.ExtractionDeps{Processor: f.processor})
	runs, total, err = noRepo.ListRuns(context.Background(), 0, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, runs)
}

func TestReviewReasons(t *testing.T) {
	low, high := 90.0, 99.5
	tests := []struct {
		name   string
		report domain.ValidationReport
		want   int
	}{
		{"clean", domain.ValidationReport{Status: domain.ValidationStatusValid}, 0},
		{"accuracy above floor", domain.ValidationReport{AccuracyAvailable: true, AccuracyPercent: &high}, 0},
		{"accuracy below floor", domain.ValidationReport{AccuracyAvailable: true, AccuracyPercent: &low}, 1},
		{"outliers", domain.ValidationReport{FlaggedOutliers: []domain.Outlier{{}, {}}}, 1},
		{"invalid", domain.ValidationReport{Status: domain.ValidationStatusInvalid}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.ReviewReasons(&domain.ExtractionResult{Validation: tt.report}, 98)
			assert.Len(t, got, tt.want)
		})
	}
}
