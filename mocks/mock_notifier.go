package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"finextract/internal/port"
)

// MockNotifier is a mock implementation of port.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyReview(ctx context.Context, notice port.ReviewNotice) error {
	args := m.Called(ctx, notice)
	return args.Error(0)
}
