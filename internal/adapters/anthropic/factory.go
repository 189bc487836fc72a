package anthropic

import (
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mikey/llm-freight-intake/internal/adapters/oracle"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/utils"
	"go.uber.org/zap"
)

// Factory creates new instances of AnthropicClient
type Factory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new factory for AnthropicClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClient creates a new AnthropicClient. SDK retries are disabled; the
// oracle guard owns retry policy.
func (f *Factory) CreateClient() (*AnthropicClient, error) {
	anthropicCfg := f.cfg.GetAnthropic()
	if anthropicCfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := sdk.NewClient(
		option.WithAPIKey(anthropicCfg.APIKey),
		option.WithMaxRetries(0),
	)
	return NewAnthropicClient(
		&client.Messages,
		anthropicCfg.ModelName,
		anthropicCfg.MaxTokens,
		anthropicCfg.Temperature,
		oracle.NewPromptBuilder(f.textProcessor, anthropicCfg.MaxBodySize),
		f.logger,
	), nil
}
