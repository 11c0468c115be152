package noop

import (
	"context"

	"go.uber.org/zap"

	"finextract/internal/notify"
	"finextract/internal/port"
)

type noopNotifier struct {
	logger *zap.Logger
}

// NewNoopNotifier creates a Notifier that only logs review notices.
func NewNoopNotifier(logger *zap.Logger) port.Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &noopNotifier{logger: logger}
}

func (n *noopNotifier) NotifyReview(_ context.Context, notice port.ReviewNotice) error {
	msg := notify.Render(notice)
	n.logger.Info("review notice (not sent)",
		zap.String("run_id", notice.RunID.String()),
		zap.String("subject", msg.Subject),
		zap.Strings("reasons", notice.Reasons),
	)
	return nil
}
