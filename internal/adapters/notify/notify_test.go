package notify

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captured struct {
	from string
	to   []string
	data []byte
}

type captureBackend struct {
	mu       sync.Mutex
	messages []captured
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{backend: b}, nil
}

func (b *captureBackend) received() []captured {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]captured(nil), b.messages...)
}

type captureSession struct {
	backend *captureBackend
	cur     captured
}

func (s *captureSession) Reset()        { s.cur = captured{} }
func (s *captureSession) Logout() error { return nil }

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.cur.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = data
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.cur)
	s.backend.mu.Unlock()
	return nil
}

func startRelay(t *testing.T) (*captureBackend, string) {
	t.Helper()
	be := &captureBackend{}
	srv := smtp.NewServer(be)
	srv.Domain = "relay.test"
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })
	return be, l.Addr().String()
}

func testPayload() *core.ClarificationPayload {
	return &core.ClarificationPayload{
		RequestID:     "req-1",
		BrokerID:      "broker-1",
		To:            "ops@shipper.test",
		Subject:       "Re: Reefer Chicago → Miami",
		InReplyTo:     "orig@shipper.test",
		References:    []string{"root@shipper.test", "orig@shipper.test"},
		FreightType:   core.FreightReefer,
		MissingFields: []string{"Temperature", "Delivery location"},
		Questions:     []string{"What temperature must the load be kept at?", "Where is the load delivering?"},
		Known:         map[string]string{"Weight": "40000 lbs", "Commodity": "frozen chicken"},
		Round:         1,
	}
}

func TestRenderClarification(t *testing.T) {
	body := RenderClarification(testPayload())
	assert.Contains(t, body, "1. What temperature must the load be kept at?")
	assert.Contains(t, body, "2. Where is the load delivering?")
	assert.Contains(t, body, "- Commodity: frozen chicken\n- Weight: 40000 lbs")
	assert.Contains(t, body, "Reference: req-1")

	p := testPayload()
	p.Round = 2
	p.Known = nil
	body = RenderClarification(p)
	assert.Contains(t, body, "We still need a little more")
	assert.NotContains(t, body, "what we have so far")
}

func TestSMTPNotifier_Send(t *testing.T) {
	relay, addr := startRelay(t)
	n := NewSMTPNotifier(config.NotifierConfig{SMTPAddress: addr, From: "Quotes Desk <quotes@broker.test>"}, zap.NewNop())
	n.newID = func() string { return "fixed-id" }
	n.now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }

	msgID, err := n.Send(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "fixed-id@broker.test", msgID)

	got := relay.received()
	require.Len(t, got, 1)
	assert.Equal(t, "quotes@broker.test", got[0].from)
	assert.Equal(t, []string{"ops@shipper.test"}, got[0].to)

	msg, err := mail.ReadMessage(bytes.NewReader(got[0].data))
	require.NoError(t, err)
	assert.Equal(t, "<fixed-id@broker.test>", msg.Header.Get("Message-Id"))
	assert.Equal(t, "<orig@shipper.test>", msg.Header.Get("In-Reply-To"))
	assert.Equal(t, "<root@shipper.test> <orig@shipper.test>", msg.Header.Get("References"))
	assert.Equal(t, "req-1", msg.Header.Get("X-Clarification-Request-Id"))

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Re: Reefer Chicago → Miami", subject)

	body, err := io.ReadAll(msg.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Where is the load delivering?")
}

func TestSMTPNotifier_ConnectionFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	n := NewSMTPNotifier(config.NotifierConfig{SMTPAddress: addr, From: "quotes@broker.test"}, zap.NewNop())
	_, err = n.Send(context.Background(), testPayload())
	assert.Error(t, err)
}

func TestLogNotifier_Send(t *testing.T) {
	msgID, err := NewLogNotifier(zap.NewNop()).Send(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Empty(t, msgID)
}
