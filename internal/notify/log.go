package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. It stands in for the mail
// relay when no SMTP host is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the message instead of delivering it.
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.Info("notification",
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
