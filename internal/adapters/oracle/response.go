package oracle

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mikey/llm-freight-intake/internal/core"
)

// extractionResponse is the JSON shape the prompt asks for. Numbers stay
// loosely typed because models return 0.9 as often as 90.
type extractionResponse struct {
	IsLoadRequest         bool           `json:"is_load_request"`
	Confidence            any            `json:"confidence"`
	ExtractionConfidence  any            `json:"extraction_confidence"`
	Intent                string         `json:"intent"`
	FreightType           string         `json:"freight_type"`
	FreightTypeConfidence any            `json:"freight_type_confidence"`
	Fields                map[string]any `json:"fields"`
	Reasoning             string         `json:"reasoning"`
}

// ParseResponse decodes a model reply into an extraction result. Markdown
// fences and prose around the JSON object are tolerated.
func ParseResponse(text, model string) (*core.ExtractionResult, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var resp extractionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
	}

	intent := strings.ToUpper(strings.TrimSpace(resp.Intent))
	if !knownIntent(intent) {
		intent = "UNKNOWN"
	}
	fields := resp.Fields
	if fields == nil {
		fields = map[string]any{}
	}

	return &core.ExtractionResult{
		IsLoadRequest:           resp.IsLoadRequest,
		Confidence:              percent(resp.Confidence),
		ExtractionConfidence:    percent(resp.ExtractionConfidence),
		Intent:                  intent,
		SuggestedFreightType:    strings.ToUpper(strings.TrimSpace(resp.FreightType)),
		SuggestedTypeConfidence: percent(resp.FreightTypeConfidence),
		Fields:                  fields,
		Reasoning:               resp.Reasoning,
		Model:                   model,
	}, nil
}

func extractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if json.Valid([]byte(s)) {
		return s, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("failed to extract JSON from LLM response")
	}
	return s[start : end+1], nil
}

// percent normalizes a 0-1 or 0-100 score to an integer percentage
func percent(v any) int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		if _, err := fmt.Sscanf(strings.TrimSuffix(strings.TrimSpace(n), "%"), "%g", &f); err != nil {
			return 0
		}
	default:
		return 0
	}
	if f > 0 && f <= 1 {
		f *= 100
	}
	f = math.Round(f)
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(f)
}

func knownIntent(intent string) bool {
	for _, i := range Intents {
		if i == intent {
			return true
		}
	}
	return false
}
