package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mikey/llm-freight-intake/internal/core"
)

// RenderClarification renders the plain-text body of a clarification email
func RenderClarification(p *core.ClarificationPayload) string {
	var sb strings.Builder
	sb.WriteString("Hello,\n\n")
	if p.Round > 1 {
		sb.WriteString("Thanks for the additional details. We still need a little more before we can quote this shipment:\n\n")
	} else {
		sb.WriteString("Thank you for your freight quote request. To prepare an accurate quote we need a few more details:\n\n")
	}
	for i, q := range p.Questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}

	if len(p.Known) > 0 {
		sb.WriteString("\nHere is what we have so far:\n")
		keys := make([]string, 0, len(p.Known))
		for k := range p.Known {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, p.Known[k])
		}
	}

	sb.WriteString("\nPlease reply to this email with the missing information and we will get back to you with a quote.\n")
	if p.RequestID != "" {
		fmt.Fprintf(&sb, "\nReference: %s\n", p.RequestID)
	}
	return sb.String()
}
