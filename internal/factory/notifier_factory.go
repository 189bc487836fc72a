package factory

import (
	"fmt"

	"github.com/mikey/llm-freight-intake/internal/adapters/notify"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"go.uber.org/zap"
)

// NotifierFactory creates the clarification notifier
type NotifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier returns the notifier selected by notifier.type, or nil for "none"
func (f *NotifierFactory) CreateNotifier() (core.ClarificationNotifier, error) {
	notifierCfg := f.cfg.GetNotifier()

	switch notifierCfg.Type {
	case "log":
		return notify.NewLogNotifier(f.logger), nil
	case "smtp":
		if notifierCfg.SMTPAddress == "" || notifierCfg.From == "" {
			return nil, fmt.Errorf("smtp notifier requires notifier.smtp_address and notifier.from")
		}
		return notify.NewSMTPNotifier(notifierCfg, f.logger), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", notifierCfg.Type)
	}
}
