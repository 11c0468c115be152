package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"finextract/internal/domain"
)

// MockProcessor is a mock implementation of service.Processor.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, doc *domain.Document) (*domain.ExtractionResult, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionResult), args.Error(1)
}
