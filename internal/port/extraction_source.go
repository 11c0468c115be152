package port

import (
	"context"

	"finextract/internal/domain"
)

// ExtractionSource produces an independent record set for a document.
type ExtractionSource interface {
	Name() string
	Extract(ctx context.Context, doc *domain.Document) ([]domain.SecurityRecord, error)
}
