package senders

import (
	"strings"

	"go.uber.org/zap"
)

// automated mailbox prefixes that never send load requests
var automatedLocalParts = []string{
	"noreply",
	"no-reply",
	"donotreply",
	"do-not-reply",
	"mailer-daemon",
	"postmaster",
	"bounce",
}

// Policy decides which senders are never load requests
type Policy struct {
	domains []string
	logger  *zap.Logger
}

// NewPolicy creates a sender policy ignoring the given domains and automated mailboxes
func NewPolicy(domains []string, logger *zap.Logger) *Policy {
	normalized := make([]string, 0, len(domains))
	for _, domain := range domains {
		if d := strings.ToLower(strings.TrimSpace(domain)); d != "" {
			normalized = append(normalized, strings.TrimPrefix(d, "@"))
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized sender policy", zap.Strings("ignored_domains", normalized))
	}

	return &Policy{
		domains: normalized,
		logger:  logger,
	}
}

// ShouldIgnore reports whether mail from the address should skip the pipeline
func (p *Policy) ShouldIgnore(from string) (bool, string) {
	addr := strings.ToLower(strings.TrimSpace(from))
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return false, ""
	}
	local, domain := addr[:at], addr[at+1:]

	for _, prefix := range automatedLocalParts {
		if strings.HasPrefix(local, prefix) {
			return true, "automated sender"
		}
	}

	for _, ignored := range p.domains {
		if domain == ignored || strings.HasSuffix(domain, "."+ignored) {
			if p.logger != nil {
				p.logger.Debug("Sender domain is ignored",
					zap.String("domain", domain),
					zap.String("email", from))
			}
			return true, "ignored sender domain"
		}
	}
	return false, ""
}
