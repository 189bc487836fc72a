package factory

import (
	"fmt"

	"github.com/mikey/llm-freight-intake/internal/adapters/anthropic"
	"github.com/mikey/llm-freight-intake/internal/adapters/bedrock"
	"github.com/mikey/llm-freight-intake/internal/adapters/gemini"
	"github.com/mikey/llm-freight-intake/internal/adapters/guard"
	"github.com/mikey/llm-freight-intake/internal/adapters/openai"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates the extraction oracle for the configured provider
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateOracle creates the provider client and wraps it with rate limiting and retries
func (f *LLMFactory) CreateOracle() (*guard.GuardedOracle, error) {
	provider := f.cfg.GetLLM().Provider

	var (
		inner core.ExtractionOracle
		err   error
	)
	switch provider {
	case "bedrock":
		inner, err = unwrap(bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient())
	case "gemini":
		inner, err = unwrap(gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient())
	case "openai":
		inner, err = unwrap(openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient())
	case "anthropic":
		inner, err = unwrap(anthropic.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient())
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", provider, err)
	}

	f.logger.Info("Created extraction oracle", zap.String("provider", provider))
	return guard.NewGuardedOracle(inner, provider, f.cfg.GetOracleGuard(), f.logger), nil
}

// unwrap converts a concrete client into the port without leaking a typed nil
func unwrap[T core.ExtractionOracle](client T, err error) (core.ExtractionOracle, error) {
	if err != nil {
		return nil, err
	}
	return client, nil
}
