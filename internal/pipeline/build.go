package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/extract"
	"finextract/internal/port"
	"finextract/internal/reconcile"
	"finextract/internal/source"
	"finextract/internal/validator"
)

// FromConfig wires a Pipeline from application configuration: the pattern
// set, the text pass, the optional remote source behind a circuit breaker,
// the reconciler and the validation engine.
func FromConfig(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Extraction.Validate(); err != nil {
		return nil, err
	}

	ps := extract.DefaultPatternSet()
	if path := cfg.Extraction.PatternsFile; path != "" {
		loaded, err := extract.LoadPatternSet(path)
		if err != nil {
			return nil, fmt.Errorf("loading patterns: %w", err)
		}
		ps = loaded
		logger.Info("loaded pattern set", zap.String("path", path))
	}

	var sources []port.ExtractionSource
	if cfg.Source.Configured() {
		remote, err := source.NewSource(&cfg.Source, logger)
		if err != nil {
			return nil, fmt.Errorf("creating %s source: %w", cfg.Source.Provider, err)
		}
		sources = append(sources, source.NewFallbackSource(remote.Name(), []port.ExtractionSource{remote}, logger))
		logger.Info("secondary source enabled",
			zap.String("provider", cfg.Source.Provider),
			zap.String("name", remote.Name()),
		)
	}

	engine := validator.NewEngine(nil, validator.Config{
		MaxPlausibleValue: cfg.Extraction.MaxPlausibleValue,
		OutlierThreshold:  cfg.Extraction.OutlierThreshold,
		OutlierAction:     domain.OutlierAction(cfg.Extraction.OutlierAction),
		AccuracyMethod:    domain.AccuracyMethod(cfg.Extraction.AccuracyMethod),
		LowConfidence:     cfg.Extraction.LowConfidence,
	}, logger)

	return New(
		source.NewTextSource(ps, &cfg.Extraction, logger),
		sources,
		reconcile.New(cfg.Extraction.MinAcceptance, cfg.Extraction.AgreementTolerance),
		engine,
		time.Duration(cfg.Source.TimeoutSecs)*time.Second,
		logger,
	), nil
}
