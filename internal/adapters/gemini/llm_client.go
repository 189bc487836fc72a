package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-freight-intake/internal/adapters/oracle"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/resilience"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// contentGenerator is the part of *genai.GenerativeModel the oracle uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements core.ExtractionOracle with Google Gemini
type GeminiClient struct {
	client    *genai.Client
	model     contentGenerator
	modelName string
	prompts   *oracle.PromptBuilder
	logger    *zap.Logger
}

// NewGeminiClient creates a new Gemini extraction client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	prompts *oracle.PromptBuilder,
	logger *zap.Logger,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompts.System())}}

	return &GeminiClient{
		client:    client,
		model:     model,
		modelName: modelName,
		prompts:   prompts,
		logger:    logger,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Extract asks the model for the freight fields of an email
func (c *GeminiClient) Extract(ctx context.Context, req core.ExtractionRequest) (*core.ExtractionResult, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(c.prompts.Build(req)))
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to generate content with Gemini: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	c.logger.Debug("Gemini extraction complete",
		zap.String("model", c.modelName),
		zap.Int("focus_fields", len(req.FocusFields)))

	return oracle.ParseResponse(text.String(), c.modelName)
}

func classifyError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && resilience.IsTransientHTTPStatus(gErr.Code) {
		return resilience.NewTransientError(err, gErr.Code)
	}
	return err
}
