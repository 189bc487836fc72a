package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMatchWindow bounds how old an open request may be for the
// sender-based fallback
const DefaultMatchWindow = 7 * 24 * time.Hour

var (
	replyPrefix     = regexp.MustCompile(`(?i)^\s*(re|aw|sv|antw)\s*(\[\d+\])?\s*:`)
	messageIDInList = regexp.MustCompile(`<([^<>\s]+)>`)
)

// ClarificationMatcher links an inbound reply to the open clarification request it answers
type ClarificationMatcher struct {
	repo   Repository
	logger *zap.Logger
	window time.Duration
	now    func() time.Time
}

// NewClarificationMatcher creates a matcher. A non-positive window uses DefaultMatchWindow.
func NewClarificationMatcher(repo Repository, logger *zap.Logger, window time.Duration) *ClarificationMatcher {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	return &ClarificationMatcher{repo: repo, logger: logger, window: window, now: time.Now}
}

// FindMatchingRequest returns the open request this email replies to, or nil
// when it starts a new conversation. Store failures are logged and reported as no match.
func (m *ClarificationMatcher) FindMatchingRequest(ctx context.Context, email *Email) *ClarificationRequest {
	ids := ThreadMessageIDs(email)
	if len(ids) > 0 {
		req, err := m.repo.FindOpenByMessageIDs(ctx, email.BrokerID, ids)
		switch {
		case err == nil && req != nil:
			m.logger.Debug("Matched clarification by thread headers",
				zap.String("request_id", req.ID),
				zap.String("message_id", email.MessageID))
			return req
		case err != nil && !errors.Is(err, ErrNotFound):
			m.logger.Warn("Thread lookup failed", zap.Error(err), zap.String("broker_id", email.BrokerID))
		}
	}

	if len(ids) > 0 && !IsReplySubject(email.Subject) {
		return nil
	}

	shipper := NormalizeAddress(email.From)
	if shipper == "" {
		return nil
	}
	req, err := m.repo.FindLatestOpenByShipper(ctx, email.BrokerID, shipper, m.now().Add(-m.window))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("Shipper lookup failed", zap.Error(err), zap.String("shipper_email", shipper))
		}
		return nil
	}
	m.logger.Info("Matched clarification by sender",
		zap.String("request_id", req.ID),
		zap.String("shipper_email", shipper),
		zap.String("subject", email.Subject),
		zap.String("request_subject", req.Subject),
		zap.String("message_id", email.MessageID))
	return req
}

// ThreadMessageIDs collects the cleaned message-ids from In-Reply-To and References
func ThreadMessageIDs(email *Email) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(raw string) {
		for _, id := range splitMessageIDs(raw) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	add(email.InReplyTo)
	for _, ref := range email.References {
		add(ref)
	}
	return ids
}

func splitMessageIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if m := messageIDInList.FindAllStringSubmatch(raw, -1); len(m) > 0 {
		out := make([]string, 0, len(m))
		for _, g := range m {
			out = append(out, g[1])
		}
		return out
	}
	var out []string
	for _, f := range strings.Fields(raw) {
		if id := CleanMessageID(f); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// CleanMessageID strips whitespace and angle brackets from a message-id
func CleanMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// IsReplySubject reports whether a subject carries a reply prefix
func IsReplySubject(subject string) bool {
	return replyPrefix.MatchString(subject)
}

// NormalizeAddress extracts the bare lower-case address from a From value
func NormalizeAddress(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.Index(from[i:], ">"); j > 0 {
			from = from[i+1 : i+j]
		}
	}
	return strings.ToLower(strings.TrimSpace(from))
}
