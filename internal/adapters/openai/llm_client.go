package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/llm-freight-intake/internal/adapters/oracle"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/resilience"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// chatCompleter is the part of *openai.Client the oracle uses
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements core.ExtractionOracle with the chat completions API
type OpenAIClient struct {
	client      chatCompleter
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	prompts     *oracle.PromptBuilder
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI extraction client
func NewOpenAIClient(
	client chatCompleter,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	prompts *oracle.PromptBuilder,
	logger *zap.Logger,
) *OpenAIClient {
	return &OpenAIClient{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		prompts:     prompts,
		logger:      logger,
	}
}

// Extract asks the model for the freight fields of an email
func (c *OpenAIClient) Extract(ctx context.Context, req core.ExtractionRequest) (*core.ExtractionResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: c.prompts.System(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: c.prompts.Build(req),
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to create chat completion with OpenAI: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	c.logger.Debug("OpenAI extraction complete",
		zap.String("model", c.modelName),
		zap.String("completion_id", resp.ID),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Int("focus_fields", len(req.FocusFields)))

	return oracle.ParseResponse(resp.Choices[0].Message.Content, c.modelName)
}

// classifyError marks throttling and server errors as retryable
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode) {
		return resilience.NewTransientError(err, apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && resilience.IsTransientHTTPStatus(reqErr.HTTPStatusCode) {
		return resilience.NewTransientError(err, reqErr.HTTPStatusCode)
	}
	return err
}
