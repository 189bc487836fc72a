package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/metrics"
	"go.uber.org/zap"
)

const reasonDuplicate = "duplicate message"

// EmailProcessor runs one email through the intake pipeline
type EmailProcessor interface {
	ProcessEmail(ctx context.Context, email *core.Email) (*core.IntakeResult, error)
}

// MessageLedger remembers which message-ids were already processed
type MessageLedger interface {
	MarkMessageProcessed(ctx context.Context, brokerID, messageID string) (bool, error)
	ReleaseMessage(ctx context.Context, brokerID, messageID string) error
}

// BrokerResolver maps a recipient mailbox to the broker that owns it
type BrokerResolver struct {
	brokers  map[string]string
	fallback string
}

// NewBrokerResolver creates a resolver from the intake configuration
func NewBrokerResolver(cfg config.IntakeConfig) *BrokerResolver {
	brokers := make(map[string]string, len(cfg.Brokers))
	for addr, id := range cfg.Brokers {
		brokers[strings.ToLower(strings.TrimSpace(addr))] = id
	}
	fallback := cfg.DefaultBrokerID
	if fallback == "" {
		fallback = "default"
	}
	return &BrokerResolver{brokers: brokers, fallback: fallback}
}

// Resolve returns the broker of the first known recipient, or the default broker
func (r *BrokerResolver) Resolve(recipients []string) string {
	for _, rcpt := range recipients {
		if id, ok := r.brokers[core.NormalizeAddress(rcpt)]; ok {
			return id
		}
	}
	return r.fallback
}

// Handler is shared by every ingestion adapter. It resolves the broker,
// drops redelivered messages and records metrics around the pipeline.
type Handler struct {
	service EmailProcessor
	ledger  MessageLedger
	brokers *BrokerResolver
	logger  *zap.Logger
}

// NewHandler creates a new ingestion handler. ledger may be nil to disable deduplication.
func NewHandler(service EmailProcessor, ledger MessageLedger, brokers *BrokerResolver, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		ledger:  ledger,
		brokers: brokers,
		logger:  logger,
	}
}

// Handle processes one inbound email
func (h *Handler) Handle(ctx context.Context, email *core.Email) (*core.IntakeResult, error) {
	if email.BrokerID == "" {
		email.BrokerID = h.brokers.Resolve(email.To)
	}
	start := time.Now()
	msgID := core.CleanMessageID(email.MessageID)

	if msgID != "" && h.ledger != nil {
		fresh, err := h.ledger.MarkMessageProcessed(ctx, email.BrokerID, msgID)
		if err != nil {
			return nil, fmt.Errorf("failed to record message: %w", err)
		}
		if !fresh {
			metrics.DuplicateMessages.Inc()
			h.logger.Info("Skipping already processed message",
				zap.String("broker_id", email.BrokerID),
				zap.String("message_id", msgID))
			return &core.IntakeResult{Action: core.ActionIgnore, Reason: reasonDuplicate, Duplicate: true}, nil
		}
	}

	result, err := h.service.ProcessEmail(ctx, email)
	if err != nil {
		metrics.RecordDecision("error", false, time.Since(start))
		if msgID != "" && h.ledger != nil {
			if relErr := h.ledger.ReleaseMessage(ctx, email.BrokerID, msgID); relErr != nil {
				h.logger.Warn("Failed to release message for retry",
					zap.Error(relErr),
					zap.String("message_id", msgID))
			}
		}
		return nil, err
	}

	metrics.RecordDecision(string(result.Action), result.IsReply, time.Since(start))
	h.logger.Info("Processed email",
		zap.String("broker_id", email.BrokerID),
		zap.String("message_id", msgID),
		zap.String("from", email.From),
		zap.String("action", string(result.Action)),
		zap.String("reason", result.Reason),
		zap.Int("confidence", result.Confidence),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}
