package intake

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/utils"
	"go.uber.org/zap"
)

const (
	defaultMaxMessageBytes = 10 * 1024 * 1024
	processTimeout         = 2 * time.Minute
)

// SMTPIntake receives broker mailbox traffic over SMTP, typically as a
// Postfix content filter or a transport for the quote mailboxes
type SMTPIntake struct {
	handler         *Handler
	textProcessor   *utils.TextProcessor
	logger          *zap.Logger
	listenAddr      string
	domain          string
	maxMessageBytes int64
	server          *smtp.Server
	listener        net.Listener
}

// NewSMTPIntake creates a new SMTP intake listener
func NewSMTPIntake(handler *Handler, tp *utils.TextProcessor, logger *zap.Logger, cfg config.ServerConfig) *SMTPIntake {
	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxMessageBytes
	}
	domain := cfg.Domain
	if domain == "" {
		domain = "localhost"
	}
	return &SMTPIntake{
		handler:         handler,
		textProcessor:   tp,
		logger:          logger,
		listenAddr:      cfg.ListenAddress,
		domain:          domain,
		maxMessageBytes: maxBytes,
	}
}

// Start binds the listener and serves SMTP in the background
func (i *SMTPIntake) Start() error {
	i.server = smtp.NewServer(&smtpBackend{intake: i})
	i.server.Addr = i.listenAddr
	i.server.Domain = i.domain
	i.server.ReadTimeout = 30 * time.Second
	i.server.WriteTimeout = 30 * time.Second
	i.server.MaxMessageBytes = i.maxMessageBytes
	i.server.MaxRecipients = 50

	l, err := net.Listen("tcp", i.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", i.listenAddr, err)
	}
	i.listener = l

	i.logger.Info("SMTP intake starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := i.server.Serve(l); err != nil && err != smtp.ErrServerClosed {
			i.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (i *SMTPIntake) Addr() net.Addr {
	if i.listener == nil {
		return nil
	}
	return i.listener.Addr()
}

// Stop closes the listener and all open sessions
func (i *SMTPIntake) Stop() error {
	if i.server != nil {
		return i.server.Close()
	}
	return nil
}

type smtpBackend struct {
	intake *SMTPIntake
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{intake: b.intake}, nil
}

type smtpSession struct {
	intake     *SMTPIntake
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data parses the message and hands it to the pipeline. Parse failures are
// rejected permanently; pipeline failures are deferred so the sender retries.
func (s *smtpSession) Data(r io.Reader) error {
	log := s.intake.logger
	raw, err := io.ReadAll(r)
	if err != nil {
		log.Error("Failed to read message data", zap.Error(err))
		return err
	}

	email, err := ParseMessage(raw, s.intake.textProcessor)
	if err != nil {
		log.Warn("Rejecting unparseable message", zap.Error(err), zap.String("sender", s.sender))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message",
		}
	}
	if email.From == "" {
		email.From = s.sender
	}
	email.BrokerID = s.intake.handler.brokers.Resolve(append(append([]string{}, s.recipients...), email.To...))

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	if _, err := s.intake.handler.Handle(ctx, email); err != nil {
		log.Error("Failed to process email",
			zap.Error(err),
			zap.String("sender", s.sender),
			zap.String("message_id", email.MessageID))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary processing failure, try again later",
		}
	}
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}
