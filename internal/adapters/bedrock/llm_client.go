package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/mikey/llm-freight-intake/internal/adapters/oracle"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/resilience"
	"go.uber.org/zap"
)

const anthropicBedrockVersion = "bedrock-2023-05-31"

// modelInvoker is the part of *bedrockruntime.Client the oracle uses
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient implements core.ExtractionOracle with Amazon Bedrock
type BedrockClient struct {
	client      modelInvoker
	modelID     string
	maxTokens   int
	temperature float32
	topP        float32
	prompts     *oracle.PromptBuilder
	logger      *zap.Logger
}

// NewBedrockClient creates a new Bedrock extraction client
func NewBedrockClient(
	client modelInvoker,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	prompts *oracle.PromptBuilder,
	logger *zap.Logger,
) *BedrockClient {
	return &BedrockClient{
		client:      client,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		prompts:     prompts,
		logger:      logger,
	}
}

// Extract asks the model for the freight fields of an email
func (c *BedrockClient) Extract(ctx context.Context, req core.ExtractionRequest) (*core.ExtractionResult, error) {
	prompt := c.prompts.Build(req)

	payload, err := c.requestBody(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to invoke Bedrock model: %w", err))
	}

	text, err := c.responseText(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Bedrock extraction complete",
		zap.String("model", c.modelID),
		zap.Int("focus_fields", len(req.FocusFields)))

	return oracle.ParseResponse(text, c.modelID)
}

func (c *BedrockClient) requestBody(prompt string) ([]byte, error) {
	switch {
	case c.isAnthropicModel():
		return json.Marshal(map[string]any{
			"anthropic_version": anthropicBedrockVersion,
			"max_tokens":        c.maxTokens,
			"temperature":       c.temperature,
			"top_p":             c.topP,
			"system":            c.prompts.System(),
			"messages": []map[string]any{
				{"role": "user", "content": prompt},
			},
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]any{
			"inputText": c.prompts.System() + "\n\n" + prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      c.prompts.System() + "\n\n" + prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
}

func (c *BedrockClient) responseText(body []byte) (string, error) {
	switch {
	case c.isAnthropicModel():
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var sb strings.Builder
		for _, block := range claudeResp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return "", fmt.Errorf("empty response from Claude model")
		}
		return sb.String(), nil
	case c.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	default:
		var genericResp struct {
			Output     string `json:"output"`
			Text       string `json:"text"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		for _, s := range []string{genericResp.Output, genericResp.Text, genericResp.Generation} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model,
// including cross-region inference profiles such as us.anthropic.claude
func (c *BedrockClient) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}

func classifyError(err error) error {
	var throttled *types.ThrottlingException
	var unavailable *types.ServiceUnavailableException
	var notReady *types.ModelNotReadyException
	var timeout *types.ModelTimeoutException
	switch {
	case errors.As(err, &throttled):
		return resilience.NewTransientError(err, 429)
	case errors.As(err, &unavailable):
		return resilience.NewTransientError(err, 503)
	case errors.As(err, &notReady), errors.As(err, &timeout):
		return resilience.NewTransientError(err, 0)
	}
	return err
}
