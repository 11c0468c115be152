package validator

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finextract/internal/domain"
)

// Defaults for Config.
const (
	DefaultMaxPlausibleValue = 1e9
	DefaultOutlierThreshold  = 15_000_000
	DefaultLowConfidence     = 0.5
)

// Config holds the portfolio validation thresholds.
type Config struct {
	MaxPlausibleValue float64
	OutlierThreshold  float64
	OutlierAction     domain.OutlierAction
	AccuracyMethod    domain.AccuracyMethod
	LowConfidence     float64
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{
		MaxPlausibleValue: DefaultMaxPlausibleValue,
		OutlierThreshold:  DefaultOutlierThreshold,
		OutlierAction:     domain.OutlierReview,
		AccuracyMethod:    domain.AccuracyRatio,
		LowConfidence:     DefaultLowConfidence,
	}
}

// Engine runs the registered rules and builds the portfolio report.
type Engine struct {
	registry *Registry
	cfg      Config
	logger   *zap.Logger
}

// NewEngine creates a new validation engine. A nil registry selects the
// built-in rules.
func NewEngine(registry *Registry, cfg Config, logger *zap.Logger) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if cfg.MaxPlausibleValue <= 0 {
		cfg.MaxPlausibleValue = DefaultMaxPlausibleValue
	}
	if cfg.OutlierThreshold <= 0 {
		cfg.OutlierThreshold = DefaultOutlierThreshold
	}
	if cfg.OutlierAction == "" {
		cfg.OutlierAction = domain.OutlierReview
	}
	if cfg.AccuracyMethod == "" {
		cfg.AccuracyMethod = domain.AccuracyRatio
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{registry: registry, cfg: cfg, logger: logger}
}

// MaxPlausibleValue is the upper bound a single position may reach.
func (e *Engine) MaxPlausibleValue() float64 { return e.cfg.MaxPlausibleValue }

// Validate checks a merged record set against an optional expected total.
func (e *Engine) Validate(records []domain.SecurityRecord, expectedTotal *float64) domain.ValidationReport {
	return e.ValidateReconciled(&domain.ReconciliationResult{Records: records}, expectedTotal)
}

// ValidateReconciled is Validate with the reconciler's conflicts in view.
func (e *Engine) ValidateReconciled(res *domain.ReconciliationResult, expectedTotal *float64) domain.ValidationReport {
	total := decimal.Zero
	for i := range res.Records {
		total = total.Add(decimal.NewFromFloat(res.Records[i].MarketValue))
	}

	report := domain.ValidationReport{
		TotalValue:      total.InexactFloat64(),
		ExpectedTotal:   expectedTotal,
		AccuracyMethod:  e.cfg.AccuracyMethod,
		FlaggedOutliers: e.outliers(res.Records),
		Results:         []domain.RuleResult{},
	}
	if expectedTotal != nil && *expectedTotal > 0 {
		acc := Accuracy(total, decimal.NewFromFloat(*expectedTotal), e.cfg.AccuracyMethod)
		report.AccuracyPercent = &acc
		report.AccuracyAvailable = true
	}

	in := &Input{Records: res.Records, Conflicts: res.Conflicts, Config: e.cfg}
	hasError, hasWarning := false, false
	for _, rule := range e.registry.All() {
		for _, r := range rule.Check(in) {
			report.Results = append(report.Results, r)
			if r.Passed {
				continue
			}
			if r.Severity == domain.ValidationSeverityError {
				hasError = true
			} else {
				hasWarning = true
			}
		}
	}

	switch {
	case hasError:
		report.Status = domain.ValidationStatusInvalid
	case hasWarning:
		report.Status = domain.ValidationStatusWarning
	default:
		report.Status = domain.ValidationStatusValid
	}

	e.logger.Debug("portfolio validated",
		zap.String("status", string(report.Status)),
		zap.Int("records", len(res.Records)),
		zap.Int("outliers", len(report.FlaggedOutliers)),
		zap.Bool("accuracy_available", report.AccuracyAvailable),
	)
	return report
}

func (e *Engine) outliers(records []domain.SecurityRecord) []domain.Outlier {
	out := []domain.Outlier{}
	for i := range records {
		r := &records[i]
		if r.MarketValue <= e.cfg.OutlierThreshold {
			continue
		}
		suggested := r.MarketValue
		if e.cfg.OutlierAction == domain.OutlierClip {
			suggested = e.cfg.OutlierThreshold
		}
		out = append(out, domain.Outlier{
			Identifier: r.Identifier,
			Value:      r.MarketValue,
			Threshold:  e.cfg.OutlierThreshold,
			Action:     e.cfg.OutlierAction,
			Suggested:  suggested,
		})
	}
	return out
}

// Accuracy compares a total with an expected total, as a percentage.
// Ratio is min/max × 100; deviation is (1 − |t−e|/e) × 100 floored at 0.
func Accuracy(total, expected decimal.Decimal, method domain.AccuracyMethod) float64 {
	hundred := decimal.NewFromInt(100)
	if method == domain.AccuracyDeviation {
		if expected.IsZero() {
			return 0
		}
		acc := decimal.NewFromInt(1).Sub(total.Sub(expected).Abs().Div(expected)).Mul(hundred)
		if acc.IsNegative() {
			return 0
		}
		return acc.InexactFloat64()
	}

	lo, hi := decimal.Min(total, expected), decimal.Max(total, expected)
	if hi.IsZero() {
		return 100
	}
	if lo.IsNegative() {
		return 0
	}
	return lo.Div(hi).Mul(hundred).InexactFloat64()
}
