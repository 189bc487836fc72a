package core

import (
	"regexp"
	"strings"
)

var quoteHeaderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*on .+wrote:\s*$`),
	regexp.MustCompile(`(?i)^\s*-{2,}\s*original message\s*-{2,}\s*$`),
	regexp.MustCompile(`(?i)^\s*from:\s.+$`),
	regexp.MustCompile(`(?i)^\s*_{5,}\s*$`),
}

// StripQuotedReply keeps only the text written above the quoted history of a
// reply. A body that is entirely quoted is returned unchanged.
func StripQuotedReply(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if isQuoteHeader(line) {
			break
		}
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if out == "" {
		return body
	}
	return out
}

func isQuoteHeader(line string) bool {
	for _, p := range quoteHeaderPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
