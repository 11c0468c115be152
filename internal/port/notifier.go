package port

import (
	"context"

	"github.com/google/uuid"
)

// ReviewNotice describes a run that needs a human to look at it.
type ReviewNotice struct {
	RunID        uuid.UUID
	DocumentName string
	Reasons      []string
	TotalValue   float64
	Accuracy     *float64
}

// Notifier delivers review notices to reviewers.
type Notifier interface {
	NotifyReview(ctx context.Context, notice ReviewNotice) error
}
