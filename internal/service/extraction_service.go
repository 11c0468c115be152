package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"finextract/internal/domain"
	"finextract/internal/export"
	"finextract/internal/port"
	"finextract/internal/storage"
)

// Processor runs the extraction pipeline over one document.
type Processor interface {
	Process(ctx context.Context, doc *domain.Document) (*domain.ExtractionResult, error)
}

// ExtractRequest is the DTO for extracting positions from statement text.
type ExtractRequest struct {
	DocumentName     string
	Text             string
	ExpectedTotal    *float64
	SecondarySources []domain.SourceRecords
	Overrides        map[string]float64
}

// ExtractFromStorageRequest is the DTO for extracting an archived statement.
type ExtractFromStorageRequest struct {
	Key           string
	DocumentName  string
	ExpectedTotal *float64
}

// ExportOutput is a rendered export file.
type ExportOutput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ArchiveLink is a time-limited download link for an archived result.
type ArchiveLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DefaultPresignTTL is used when ExtractionDeps.PresignTTL is unset.
const DefaultPresignTTL = 15 * time.Minute

// ExtractionService defines the extraction workflow contract.
type ExtractionService interface {
	Extract(ctx context.Context, req *ExtractRequest) (*domain.ExtractionResult, error)
	ExtractFromStorage(ctx context.Context, req *ExtractFromStorageRequest) (*domain.ExtractionResult, error)
	GetRun(ctx context.Context, id uuid.UUID) (*domain.ExtractionRun, error)
	GetResult(ctx context.Context, id uuid.UUID) (*domain.ExtractionResult, error)
	ListRuns(ctx context.Context, offset, limit int) ([]domain.ExtractionRun, int, error)
	Export(ctx context.Context, id uuid.UUID, format domain.ExportFormat) (*ExportOutput, error)
	ArchiveURL(ctx context.Context, id uuid.UUID) (*ArchiveLink, error)
}

// ExtractionDeps are the collaborators of the extraction service. Runs,
// Archive and Notifier are optional.
type ExtractionDeps struct {
	Processor     Processor
	Runs          port.RunRepository
	Archive       *storage.Archive
	Notifier      port.Notifier
	Cache         *cache.Cache
	AccuracyFloor float64
	PresignTTL    time.Duration
	Logger        *zap.Logger
}

type extractionService struct {
	processor     Processor
	runs          port.RunRepository
	archive       *storage.Archive
	notifier      port.Notifier
	cache         *cache.Cache
	accuracyFloor float64
	presignTTL    time.Duration
	logger        *zap.Logger
}

// NewExtractionService creates a new ExtractionService implementation.
func NewExtractionService(deps ExtractionDeps) ExtractionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := deps.Cache
	if c == nil {
		c = cache.New(cache.NoExpiration, 0)
	}
	ttl := deps.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	return &extractionService{
		processor:     deps.Processor,
		runs:          deps.Runs,
		archive:       deps.Archive,
		notifier:      deps.Notifier,
		cache:         c,
		accuracyFloor: deps.AccuracyFloor,
		presignTTL:    ttl,
		logger:        logger,
	}
}

func (s *extractionService) Extract(ctx context.Context, req *ExtractRequest) (*domain.ExtractionResult, error) {
	doc := &domain.Document{
		Name:             req.DocumentName,
		Text:             req.Text,
		ExpectedTotal:    req.ExpectedTotal,
		SecondarySources: req.SecondarySources,
		Overrides:        req.Overrides,
	}
	hash, err := contentHash(doc)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(hash); ok {
		s.logger.Debug("extraction cache hit", zap.String("content_hash", hash))
		return cached.(*domain.ExtractionResult), nil
	}

	result, err := s.processor.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("processing %q: %w", req.DocumentName, err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}

	var archiveKey string
	if s.archive != nil {
		archiveKey, err = s.archive.Store(ctx, result.RunID, req.Text, payload)
		if err != nil {
			s.logger.Warn("failed to archive run", zap.String("run_id", result.RunID.String()), zap.Error(err))
			archiveKey = ""
		}
	}

	if s.runs != nil {
		run := newRun(result, hash, archiveKey, payload)
		if err := s.runs.Create(ctx, run); err != nil {
			if archiveKey != "" {
				if rmErr := s.archive.Remove(ctx, result.RunID); rmErr != nil {
					s.logger.Warn("failed to remove archive of unsaved run",
						zap.String("run_id", result.RunID.String()), zap.Error(rmErr))
				}
			}
			return nil, fmt.Errorf("saving run: %w", err)
		}
	}

	// A degraded result is not cached so the next request retries the
	// unavailable source.
	if !result.Degraded {
		s.cache.Set(hash, result, cache.DefaultExpiration)
	}
	s.notifyIfNeeded(ctx, result)
	return result, nil
}

func (s *extractionService) ExtractFromStorage(ctx context.Context, req *ExtractFromStorageRequest) (*domain.ExtractionResult, error) {
	if strings.TrimSpace(req.Key) == "" {
		return nil, fmt.Errorf("%w: key is required", domain.ErrInvalidRequest)
	}
	text, err := s.archive.FetchText(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	name := req.DocumentName
	if name == "" {
		name = path.Base(req.Key)
	}
	return s.Extract(ctx, &ExtractRequest{DocumentName: name, Text: text, ExpectedTotal: req.ExpectedTotal})
}

func (s *extractionService) GetRun(ctx context.Context, id uuid.UUID) (*domain.ExtractionRun, error) {
	if s.runs == nil {
		return nil, domain.ErrRunNotFound
	}
	return s.runs.GetByID(ctx, id)
}

func (s *extractionService) GetResult(ctx context.Context, id uuid.UUID) (*domain.ExtractionResult, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	var result domain.ExtractionResult
	if err := json.Unmarshal([]byte(run.Result), &result); err != nil {
		return nil, fmt.Errorf("decoding stored result of run %s: %w", id, err)
	}
	return &result, nil
}

func (s *extractionService) ListRuns(ctx context.Context, offset, limit int) ([]domain.ExtractionRun, int, error) {
	if s.runs == nil {
		return []domain.ExtractionRun{}, 0, nil
	}
	return s.runs.List(ctx, offset, limit)
}

func (s *extractionService) Export(ctx context.Context, id uuid.UUID, format domain.ExportFormat) (*ExportOutput, error) {
	contentType, ok := domain.ExportContentTypes[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
	result, err := s.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, result); err != nil {
		return nil, fmt.Errorf("exporting run %s: %w", id, err)
	}
	return &ExportOutput{
		Filename:    export.BuildFilename(result.DocumentName, format, result.ProcessedAt),
		ContentType: contentType,
		Data:        buf.Bytes(),
	}, nil
}

func (s *extractionService) ArchiveURL(ctx context.Context, id uuid.UUID) (*ArchiveLink, error) {
	if s.archive == nil {
		return nil, domain.ErrStorageDisabled
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.ArchiveKey == "" {
		return nil, fmt.Errorf("run %s has no archived result: %w", id, domain.ErrObjectNotFound)
	}
	url, err := s.archive.ResultURL(ctx, run.ArchiveKey, s.presignTTL)
	if err != nil {
		return nil, err
	}
	return &ArchiveLink{URL: url, ExpiresAt: time.Now().UTC().Add(s.presignTTL)}, nil
}

// ReviewReasons lists why a result needs a human reviewer. An empty slice
// means no review is needed.
func ReviewReasons(result *domain.ExtractionResult, accuracyFloor float64) []string {
	var reasons []string
	v := &result.Validation
	if n := len(v.FlaggedOutliers); n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d position(s) above the outlier threshold", n))
	}
	if v.AccuracyAvailable && v.AccuracyPercent != nil && *v.AccuracyPercent < accuracyFloor {
		reasons = append(reasons, fmt.Sprintf("accuracy %.2f%% below %.2f%%", *v.AccuracyPercent, accuracyFloor))
	}
	if v.Status == domain.ValidationStatusInvalid {
		reasons = append(reasons, "validation failed")
	}
	return reasons
}

func (s *extractionService) notifyIfNeeded(ctx context.Context, result *domain.ExtractionResult) {
	if s.notifier == nil {
		return
	}
	reasons := ReviewReasons(result, s.accuracyFloor)
	if len(reasons) == 0 {
		return
	}
	err := s.notifier.NotifyReview(ctx, port.ReviewNotice{
		RunID:        result.RunID,
		DocumentName: result.DocumentName,
		Reasons:      reasons,
		TotalValue:   result.Validation.TotalValue,
		Accuracy:     result.Validation.AccuracyPercent,
	})
	if err != nil {
		s.logger.Warn("failed to send review notice", zap.String("run_id", result.RunID.String()), zap.Error(err))
	}
}

func newRun(result *domain.ExtractionResult, hash, archiveKey string, payload []byte) *domain.ExtractionRun {
	return &domain.ExtractionRun{
		ID:             result.RunID,
		DocumentName:   result.DocumentName,
		Status:         result.Validation.Status,
		RecordCount:    len(result.Reconciliation.Records),
		ConflictCount:  len(result.Reconciliation.Conflicts),
		TotalValue:     result.Validation.TotalValue,
		ExpectedTotal:  result.Validation.ExpectedTotal,
		Accuracy:       result.Validation.AccuracyPercent,
		ConsensusScore: result.Reconciliation.ConsensusScore,
		ContentHash:    hash,
		ArchiveKey:     archiveKey,
		Result:         string(payload),
		CreatedAt:      result.ProcessedAt,
	}
}

// contentHash identifies a document by everything that influences its result.
func contentHash(doc *domain.Document) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("hashing document: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
