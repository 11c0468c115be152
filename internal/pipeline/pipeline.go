// Package pipeline runs one document through every extraction source,
// reconciles their record sets and validates the merged portfolio.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finextract/internal/assemble"
	"finextract/internal/domain"
	"finextract/internal/port"
	"finextract/internal/reconcile"
	"finextract/internal/source"
	"finextract/internal/validator"
)

// DefaultSourceTimeout bounds a single secondary source call.
const DefaultSourceTimeout = 30 * time.Second

// Pipeline is safe for concurrent use; it holds no per-document state.
type Pipeline struct {
	text          *source.TextSource
	sources       []port.ExtractionSource
	reconciler    *reconcile.Reconciler
	engine        *validator.Engine
	sourceTimeout time.Duration
	logger        *zap.Logger
}

// New creates a Pipeline. sources are the optional secondary sources, queried
// concurrently with the text pass.
func New(
	text *source.TextSource,
	sources []port.ExtractionSource,
	reconciler *reconcile.Reconciler,
	engine *validator.Engine,
	sourceTimeout time.Duration,
	logger *zap.Logger,
) *Pipeline {
	if sourceTimeout <= 0 {
		sourceTimeout = DefaultSourceTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		text:          text,
		sources:       sources,
		reconciler:    reconciler,
		engine:        engine,
		sourceTimeout: sourceTimeout,
		logger:        logger,
	}
}

// Process extracts, reconciles and validates one document. Source failures
// degrade to warnings; only cancellation of ctx is returned as an error.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) (*domain.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &domain.ExtractionResult{
		RunID:        uuid.New(),
		DocumentName: doc.Name,
		FieldCounts:  make(map[domain.FieldType]int, len(domain.AllFieldTypes)),
		Warnings:     []string{},
	}
	log := p.logger.With(zap.String("run_id", result.RunID.String()), zap.String("document", doc.Name))

	var sets []domain.SourceRecords
	if strings.TrimSpace(doc.Text) == "" {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%v: document text is empty", domain.ErrMalformedInput))
		log.Info("empty document text, skipping extraction")
	} else {
		var err error
		sets, err = p.extract(ctx, doc, result, log)
		if err != nil {
			return nil, err
		}
	}

	for i, s := range doc.SecondarySources {
		name := strings.TrimSpace(s.Source)
		if name == "" {
			name = fmt.Sprintf("secondary_%d", i+1)
		}
		sets = append(sets, p.sanitize(name, s.Records, result))
	}
	uniqueSourceNames(sets, result)

	overrides, warnings := assemble.SanitizeOverrides(doc.Overrides, p.engine.MaxPlausibleValue())
	result.Warnings = append(result.Warnings, warnings...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Reconciliation = p.reconciler.Reconcile(sets, overrides)
	for _, id := range result.Reconciliation.Discarded {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: found by a single source below the acceptance threshold, discarded", id))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Validation = p.engine.ValidateReconciled(&result.Reconciliation, doc.ExpectedTotal)
	result.ProcessedAt = time.Now().UTC()

	log.Info("document processed",
		zap.Int("records", len(result.Reconciliation.Records)),
		zap.Int("conflicts", len(result.Reconciliation.Conflicts)),
		zap.Float64("total_value", result.Validation.TotalValue),
		zap.String("status", string(result.Validation.Status)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// extract runs the text pass and every secondary source concurrently and
// returns their record sets, text pass first.
func (p *Pipeline) extract(
	ctx context.Context,
	doc *domain.Document,
	result *domain.ExtractionResult,
	log *zap.Logger,
) ([]domain.SourceRecords, error) {
	var (
		pass       *source.TextPass
		remote     = make([][]domain.SecurityRecord, len(p.sources))
		remoteErrs = make([]error, len(p.sources))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pass, err = p.text.Run(gctx, doc.Text)
		return err
	})
	for i, s := range p.sources {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, p.sourceTimeout)
			defer cancel()
			records, err := s.Extract(sctx, doc)
			if err != nil {
				remoteErrs[i] = err
				return nil
			}
			remote[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, f := range pass.Fields {
		result.FieldCounts[f.Type]++
	}
	for _, ft := range domain.AllFieldTypes {
		if result.FieldCounts[ft] == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%v: %s", domain.ErrNoCandidates, ft))
			log.Debug("no candidates", zap.String("field_type", string(ft)))
		}
	}
	result.Warnings = append(result.Warnings, pass.Warnings...)

	sets := []domain.SourceRecords{{Source: p.text.Name(), Records: pass.Records}}
	for i, s := range p.sources {
		if err := remoteErrs[i]; err != nil {
			if !errors.Is(err, domain.ErrSourceUnavailable) {
				err = fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", s.Name(), err))
			result.Degraded = true
			log.Warn("secondary source unavailable, continuing without it",
				zap.String("source", s.Name()), zap.Error(err))
			continue
		}
		sets = append(sets, p.sanitize(s.Name(), remote[i], result))
	}
	return sets, nil
}

// sanitize enforces the record invariants on a non-text source, recording
// every dropped record as a warning.
func (p *Pipeline) sanitize(name string, records []domain.SecurityRecord, result *domain.ExtractionResult) domain.SourceRecords {
	clean, warnings := assemble.SanitizeRecords(records, p.engine.MaxPlausibleValue())
	for _, w := range warnings {
		result.Warnings = append(result.Warnings, name+": "+w)
	}
	return domain.SourceRecords{Source: name, Records: clean}
}

// uniqueSourceNames suffixes repeated source names (name_2, name_3, ...) so
// conflicts keep one value per source.
func uniqueSourceNames(sets []domain.SourceRecords, result *domain.ExtractionResult) {
	seen := make(map[string]bool, len(sets))
	for i := range sets {
		name := sets[i].Source
		if !seen[name] {
			seen[name] = true
			continue
		}
		renamed := name
		for n := 2; seen[renamed]; n++ {
			renamed = fmt.Sprintf("%s_%d", name, n)
		}
		seen[renamed] = true
		sets[i].Source = renamed
		for j := range sets[i].Records {
			sets[i].Records[j].Source = renamed
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("source %q appears more than once, renamed to %q", name, renamed))
	}
}
