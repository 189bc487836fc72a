// Package oracle holds the prompt and response handling shared by the LLM
// extraction adapters.
package oracle

import (
	"fmt"
	"strings"

	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/utils"
)

// Intents the model may report
var Intents = []string{
	"LOAD_TENDER",
	"MISSING_INFO_RESPONSE",
	"QUOTE_RESPONSE",
	"GENERAL_INQUIRY",
	"BOOKING_CONFIRMATION",
	"PAYMENT_INQUIRY",
	"SPAM_IRRELEVANT",
	"UNKNOWN",
}

// fields offered to the model on a first-contact email
var extractionFields = []string{
	core.FieldPickupLocation,
	core.FieldDeliveryLocation,
	core.FieldCommodity,
	core.FieldWeight,
	core.FieldPickupDate,
	core.FieldEquipmentType,
	core.FieldTemperature,
	core.FieldDimensions,
	core.FieldPieceCount,
	core.FieldFreightClass,
	core.FieldHazmatClass,
	core.FieldUNNumber,
	core.FieldProperShippingName,
	core.FieldPackingGroup,
	core.FieldEmergencyContact,
	core.FieldTarpingRequired,
	core.FieldOversizePermits,
	core.FieldEscortRequired,
	core.FieldSpecialRequirements,
	core.FieldAppointmentRequired,
}

const systemPrompt = `You extract freight shipment details from emails sent to a freight broker. ` +
	`Respond only with a single JSON object.`

const promptFormat = `Read the email below and decide whether it asks the broker to move or quote a shipment.

Respond with a JSON object containing:
- is_load_request: boolean
- confidence: integer 0-100, how sure you are about is_load_request
- extraction_confidence: integer 0-100, how sure you are about the extracted values
- intent: one of %s
- freight_type: one of FTL_DRY_VAN, FTL_REEFER, FTL_FLATBED, FTL_HAZMAT, LTL, PARTIAL, UNKNOWN
- freight_type_confidence: integer 0-100
- fields: object with only the keys listed below that the email actually states
- reasoning: one short sentence

Never guess a value the email does not contain. Omit unknown keys instead of using null or "TBD".
%s
Field keys:
%s

Email:
From: %s
Subject: %s
Body:
%s`

const focusNote = `This email answers questions about missing information. Only extract these keys; ignore anything else.
`

// PromptBuilder renders extraction prompts
type PromptBuilder struct {
	textProcessor *utils.TextProcessor
	maxBodySize   int
}

// NewPromptBuilder creates a builder that trims bodies to maxBodySize bytes
func NewPromptBuilder(textProcessor *utils.TextProcessor, maxBodySize int) *PromptBuilder {
	return &PromptBuilder{textProcessor: textProcessor, maxBodySize: maxBodySize}
}

// System returns the system instruction
func (b *PromptBuilder) System() string {
	return systemPrompt
}

// Build renders the user prompt for req. A non-empty FocusFields narrows the
// field manifest to those keys.
func (b *PromptBuilder) Build(req core.ExtractionRequest) string {
	fields := extractionFields
	note := ""
	if len(req.FocusFields) > 0 {
		fields = expandFocus(req.FocusFields)
		note = focusNote
	}

	var manifest strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&manifest, "- %s: %s\n", f, core.FieldDescription(f))
	}

	body := b.textProcessor.ProcessText(b.textProcessor.NormalizeWhitespace(req.Body), b.maxBodySize)
	return fmt.Sprintf(promptFormat,
		strings.Join(Intents, ", "),
		note,
		strings.TrimRight(manifest.String(), "\n"),
		req.From,
		req.Subject,
		body)
}

// expandFocus turns composite fields into the keys the model can fill
func expandFocus(focus []string) []string {
	out := make([]string, 0, len(focus)+1)
	for _, f := range focus {
		if f == core.FieldFreightClassOrPieceCount {
			out = append(out, core.FieldFreightClass, core.FieldPieceCount)
			continue
		}
		out = append(out, f)
	}
	return out
}
