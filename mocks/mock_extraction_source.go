package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"finextract/internal/domain"
)

// MockExtractionSource is a mock implementation of port.ExtractionSource.
type MockExtractionSource struct {
	mock.Mock
}

func (m *MockExtractionSource) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockExtractionSource) Extract(ctx context.Context, doc *domain.Document) ([]domain.SecurityRecord, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SecurityRecord), args.Error(1)
}
