package notify

import (
	"context"

	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/metrics"
	"go.uber.org/zap"
)

// LogNotifier writes clarification payloads to the log instead of sending them.
// Useful when another system owns outbound mail.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the payload. No message is sent so no message-id is returned.
func (n *LogNotifier) Send(_ context.Context, payload *core.ClarificationPayload) (string, error) {
	n.logger.Info("Clarification ready",
		zap.String("request_id", payload.RequestID),
		zap.String("broker_id", payload.BrokerID),
		zap.String("to", payload.To),
		zap.String("subject", payload.Subject),
		zap.String("freight_type", string(payload.FreightType)),
		zap.Strings("missing_fields", payload.MissingFields),
		zap.Int("round", payload.Round))
	n.logger.Debug("Clarification body", zap.String("body", RenderClarification(payload)))
	metrics.RecordClarificationSent(nil)
	return "", nil
}
