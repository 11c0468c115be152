package source

import (
	"context"

	"go.uber.org/zap"

	"finextract/internal/assemble"
	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/extract"
	"finextract/internal/normalize"
	"finextract/internal/score"
)

// TextPass is everything the regex pass produced for one document.
type TextPass struct {
	Normalized string
	Fields     []domain.ExtractedField
	Records    []domain.SecurityRecord
	Warnings   []string
}

// TextSource is the regex pass over statement text:
// normalize, extract, score, assemble.
type TextSource struct {
	extractor *extract.Extractor
	scorer    *score.Scorer
	assembler *assemble.Assembler
	logger    *zap.Logger
}

// NewTextSource builds the regex pass. A nil pattern set selects the
// built-in patterns.
func NewTextSource(ps *extract.PatternSet, cfg *config.ExtractionConfig, logger *zap.Logger) *TextSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextSource{
		extractor: extract.New(ps, extract.WithContextRadius(cfg.ContextRadius), extract.WithMethod(domain.MethodTextRegex)),
		scorer:    score.New(score.DefaultWeights(), cfg.NearRadius),
		assembler: assemble.New(cfg.MaxPlausibleValue, cfg.ContextRadius),
		logger:    logger,
	}
}

// Name implements port.ExtractionSource.
func (t *TextSource) Name() string { return string(domain.MethodTextRegex) }

// Extract implements port.ExtractionSource.
func (t *TextSource) Extract(ctx context.Context, doc *domain.Document) ([]domain.SecurityRecord, error) {
	pass, err := t.Run(ctx, doc.Text)
	if err != nil {
		return nil, err
	}
	return pass.Records, nil
}

// Run executes the full pass, keeping the intermediate fields and warnings.
// The context is checked between stages.
func (t *TextSource) Run(ctx context.Context, text string) (*TextPass, error) {
	pass := &TextPass{Normalized: normalize.Normalize(text)}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fields := t.extractor.Extract(pass.Normalized)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pass.Fields = t.scorer.Apply(fields)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := t.assembler.Assemble(pass.Normalized, pass.Fields, t.Name())
	pass.Records = res.Records
	pass.Warnings = res.Warnings

	t.logger.Debug("text pass complete",
		zap.Int("fields", len(pass.Fields)),
		zap.Int("records", len(pass.Records)),
		zap.Int("warnings", len(pass.Warnings)),
	)
	return pass, nil
}
