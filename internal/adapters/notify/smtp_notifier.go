package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/metrics"
	"go.uber.org/zap"
)

const (
	dialTimeout  = 10 * time.Second
	sendDeadline = 30 * time.Second
)

// SMTPNotifier delivers clarification emails through an SMTP relay
type SMTPNotifier struct {
	addr   string
	from   string
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewSMTPNotifier creates a new SMTP notifier
func NewSMTPNotifier(cfg config.NotifierConfig, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		addr:   cfg.SMTPAddress,
		from:   cfg.From,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Send delivers the payload and returns the generated message-id
func (n *SMTPNotifier) Send(ctx context.Context, payload *core.ClarificationPayload) (string, error) {
	msgID := fmt.Sprintf("%s@%s", n.newID(), senderDomain(n.from))
	data := n.compose(payload, msgID)

	err := n.deliver(ctx, payload.To, data)
	metrics.RecordClarificationSent(err)
	if err != nil {
		return "", err
	}

	n.logger.Info("Sent clarification",
		zap.String("request_id", payload.RequestID),
		zap.String("to", payload.To),
		zap.String("message_id", msgID),
		zap.Int("round", payload.Round))
	return msgID, nil
}

func (n *SMTPNotifier) compose(p *core.ClarificationPayload, msgID string) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	header("From", n.from)
	header("To", p.To)
	header("Subject", mime.QEncoding.Encode("utf-8", p.Subject))
	header("Date", n.now().Format(time.RFC1123Z))
	header("Message-ID", "<"+msgID+">")
	if p.InReplyTo != "" {
		header("In-Reply-To", "<"+core.CleanMessageID(p.InReplyTo)+">")
	}
	if len(p.References) > 0 {
		refs := make([]string, 0, len(p.References))
		for _, r := range p.References {
			refs = append(refs, "<"+core.CleanMessageID(r)+">")
		}
		header("References", strings.Join(refs, " "))
	}
	header("X-Clarification-Request-Id", p.RequestID)
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(RenderClarification(p), "\n", "\r\n"))
	return buf.Bytes()
}

func (n *SMTPNotifier) deliver(ctx context.Context, to string, data []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP relay: %w", err)
	}

	deadline := time.Now().Add(sendDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(bareAddress(n.from), nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		n.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

func bareAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return core.NormalizeAddress(from)
}

func senderDomain(from string) string {
	addr := bareAddress(from)
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
