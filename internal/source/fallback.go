package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"finextract/internal/domain"
	"finextract/internal/port"
)

// circuitState tracks rate-limit backoff for a single source.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FallbackSource tries sources in order, skipping those with open circuits.
// The first source to answer wins. It implements port.ExtractionSource.
type FallbackSource struct {
	name     string
	sources  []port.ExtractionSource
	circuits []*circuitState
	logger   *zap.Logger
	now      func() time.Time
}

// NewFallbackSource creates a FallbackSource reporting records under name.
func NewFallbackSource(name string, sources []port.ExtractionSource, logger *zap.Logger) *FallbackSource {
	circuits := make([]*circuitState, len(sources))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackSource{
		name:     name,
		sources:  sources,
		circuits: circuits,
		logger:   logger,
		now:      time.Now,
	}
}

// Name returns the name records from this chain are attributed to.
func (f *FallbackSource) Name() string { return f.name }

// Extract implements port.ExtractionSource.
func (f *FallbackSource) Extract(ctx context.Context, doc *domain.Document) ([]domain.SecurityRecord, error) {
	if len(f.sources) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", domain.ErrSourceUnavailable)
	}
	now := f.now()
	var lastErr error
	allRateLimited := true
	var earliestReset time.Time

	for i, s := range f.sources {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			f.logger.Info("skipping source, circuit open",
				zap.String("source", s.Name()),
				zap.Time("reset_at", resetAt),
			)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		records, err := s.Extract(ctx, doc)
		if err == nil {
			for j := range records {
				records[j].Source = f.name
			}
			return records, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		f.logger.Warn("source failed", zap.String("source", s.Name()), zap.Error(err))
		lastErr = err

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			resetAt := now.Add(rlErr.RetryAfter)
			f.circuits[i].open(resetAt)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
		} else {
			allRateLimited = false
		}
	}

	if lastErr == nil || allRateLimited {
		retryAfter := earliestReset.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return nil, NewRateLimitError("all", fmt.Errorf("%w: all sources rate limited", domain.ErrSourceUnavailable), retryAfter)
	}

	return nil, fmt.Errorf("%w: all sources failed: %w", domain.ErrSourceUnavailable, lastErr)
}
