package core

import (
	"context"
	"fmt"
)

// MergeContext is everything the merger needs about a reply
type MergeContext struct {
	Request *ClarificationRequest
	Email   *Email
	// Body overrides Email.Body, typically with quoted history removed
	Body string
}

// MergeResult is the combined record after a reply
type MergeResult struct {
	MergedData         LoadData
	StillMissingFields []string
	FoundFields        []string
	Extraction         *ExtractionResult
}

// ResponseMerger extracts the asked-for fields from a reply and folds them
// into the earlier snapshot
type ResponseMerger struct {
	oracle ExtractionOracle
}

// NewResponseMerger creates a merger over the given oracle
func NewResponseMerger(oracle ExtractionOracle) *ResponseMerger {
	return &ResponseMerger{oracle: oracle}
}

// ProcessResponse asks the oracle only for the previously missing fields and
// overwrites them field by field. StillMissingFields is the original missing
// list minus what the reply supplied; re-validation is left to the caller.
func (m *ResponseMerger) ProcessResponse(ctx context.Context, mc MergeContext) (*MergeResult, error) {
	if mc.Request == nil || mc.Email == nil {
		return nil, fmt.Errorf("merge context requires a request and an email")
	}
	body := mc.Body
	if body == "" {
		body = mc.Email.Body
	}

	extraction, err := m.oracle.Extract(ctx, ExtractionRequest{
		Subject:     mc.Email.Subject,
		From:        mc.Email.From,
		Body:        body,
		FocusFields: append([]string(nil), mc.Request.MissingFields...),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract reply fields: %w", err)
	}
	if extraction == nil {
		return nil, fmt.Errorf("oracle returned no result for reply")
	}

	update, found := ParseFields(extraction.Fields)
	merged := MergeFields(mc.Request.ExtractedData, update, found)

	satisfied := SatisfiedFields(found)
	still := make([]string, 0, len(mc.Request.MissingFields))
	for _, f := range mc.Request.MissingFields {
		if !satisfied[f] {
			still = append(still, f)
		}
	}

	return &MergeResult{
		MergedData:         merged,
		StillMissingFields: still,
		FoundFields:        found,
		Extraction:         extraction,
	}, nil
}
