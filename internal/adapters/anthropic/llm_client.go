package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mikey/llm-freight-intake/internal/adapters/oracle"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/resilience"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// messageCreator is the part of sdk.MessageService the oracle uses
type messageCreator interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements core.ExtractionOracle with the Messages API
type AnthropicClient struct {
	messages    messageCreator
	modelName   string
	maxTokens   int64
	temperature float64
	prompts     *oracle.PromptBuilder
	logger      *zap.Logger
}

// NewAnthropicClient creates a new Anthropic extraction client
func NewAnthropicClient(
	messages messageCreator,
	modelName string,
	maxTokens int,
	temperature float64,
	prompts *oracle.PromptBuilder,
	logger *zap.Logger,
) *AnthropicClient {
	return &AnthropicClient{
		messages:    messages,
		modelName:   modelName,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
		prompts:     prompts,
		logger:      logger,
	}
}

// Extract asks the model for the freight fields of an email
func (c *AnthropicClient) Extract(ctx context.Context, req core.ExtractionRequest) (*core.ExtractionResult, error) {
	msg, err := c.messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.modelName),
		MaxTokens:   c.maxTokens,
		System:      []sdk.TextBlockParam{{Text: c.prompts.System()}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(c.prompts.Build(req)))},
		Temperature: sdk.Float(c.temperature),
	})
	if err != nil {
		return nil, classifyError(eris.Wrap(err, "anthropic: create message"))
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, eris.New("anthropic: empty response")
	}

	c.logger.Debug("Anthropic extraction complete",
		zap.String("model", c.modelName),
		zap.String("message_id", msg.ID),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.Int("focus_fields", len(req.FocusFields)))

	return oracle.ParseResponse(text.String(), c.modelName)
}

func classifyError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}
