package intake

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/mikey/llm-freight-intake/internal/adapters/store"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	mu     sync.Mutex
	emails []*core.Email
	result *core.IntakeResult
	err    error
}

func (f *fakeProcessor) ProcessEmail(_ context.Context, email *core.Email) (*core.IntakeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, email)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &core.IntakeResult{Action: core.ActionIgnore, Reason: "not a load request"}, nil
}

func (f *fakeProcessor) received() []*core.Email {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*core.Email(nil), f.emails...)
}

func newTP() *utils.TextProcessor {
	return utils.NewTextProcessor(zap.NewNop())
}

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

const plainMessage = `From: "Dock Ops" <Ops@Shipper.test>
To: quotes@broker-a.test, cc@other.test
Subject: =?UTF-8?Q?Load_Dallas_=E2=86=92_Atlanta?=
Message-ID: <abc123@shipper.test>
In-Reply-To: <clar-1@broker-a.test>
References: <root@shipper.test> <clar-1@broker-a.test>
Date: Mon, 02 Jun 2025 10:00:00 -0500
Content-Type: text/plain; charset=utf-8

Need a dry van, 42,000 lbs paper rolls.
`

func TestParseMessage_PlainText(t *testing.T) {
	email, err := ParseMessage(crlf(plainMessage), newTP())
	require.NoError(t, err)

	assert.Equal(t, "ops@shipper.test", email.From)
	assert.Equal(t, []string{"quotes@broker-a.test", "cc@other.test"}, email.To)
	assert.Equal(t, "Load Dallas → Atlanta", email.Subject)
	assert.Equal(t, "<abc123@shipper.test>", email.MessageID)
	assert.Equal(t, "<clar-1@broker-a.test>", email.InReplyTo)
	assert.ElementsMatch(t, []string{"root@shipper.test", "clar-1@broker-a.test"}, core.ThreadMessageIDs(email))
	assert.Contains(t, email.Body, "42,000 lbs paper rolls")
	assert.Equal(t, 2025, email.ReceivedAt.Year())
	assert.Empty(t, email.BrokerID)
}

func TestParseMessage_MultipartPrefersPlain(t *testing.T) {
	raw := `From: ops@shipper.test
Subject: quote
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Pickup Dallas, TX 75201 =E2=80=93 reefer at 34F
--inner
Content-Type: text/html; charset=utf-8

<p>Pickup <b>Dallas</b></p>
--inner--

--outer
Content-Type: text/plain
Content-Disposition: attachment; filename="bol.txt"

attachment text
--outer--
`
	email, err := ParseMessage(crlf(raw), newTP())
	require.NoError(t, err)
	assert.Contains(t, email.Body, "Pickup Dallas, TX 75201 – reefer at 34F")
	assert.NotContains(t, email.Body, "<p>")
	assert.NotContains(t, email.Body, "attachment text")
}

func TestParseMessage_HTMLFallbackAndBase64(t *testing.T) {
	raw := `From: ops@shipper.test
Subject: quote
Content-Type: multipart/alternative; boundary="b"

--b
Content-Type: text/html; charset=utf-8
Content-Transfer-Encoding: base64

PGh0bWw+PGJvZHk+PHA+TmVlZCBhIGZsYXRiZWQ8L3A+PGRpdj40
OCwwMDAgbGJzIHN0ZWVsPC9kaXY+PC9ib2R5PjwvaHRtbD4=
--b--
`
	email, err := ParseMessage(crlf(raw), newTP())
	require.NoError(t, err)
	assert.Contains(t, email.Body, "Need a flatbed")
	assert.Contains(t, email.Body, "48,000 lbs steel")
	assert.NotContains(t, email.Body, "<div>")
}

func TestParseMessage_Invalid(t *testing.T) {
	_, err := ParseMessage([]byte("not an email"), newTP())
	assert.Error(t, err)
}

func TestBrokerResolver(t *testing.T) {
	r := NewBrokerResolver(config.IntakeConfig{
		DefaultBrokerID: "house",
		Brokers:         map[string]string{"Quotes@Broker-A.test": "broker-a"},
	})
	assert.Equal(t, "broker-a", r.Resolve([]string{"x@y.test", "<quotes@broker-a.test>"}))
	assert.Equal(t, "house", r.Resolve([]string{"x@y.test"}))
	assert.Equal(t, "default", NewBrokerResolver(config.IntakeConfig{}).Resolve(nil))
}

func TestHandler_DeduplicatesRedelivery(t *testing.T) {
	repo := store.NewMemoryStore(zap.NewNop(), 0, 0)
	proc := &fakeProcessor{}
	h := NewHandler(proc, repo, NewBrokerResolver(config.IntakeConfig{DefaultBrokerID: "b1"}), zap.NewNop())

	email := &core.Email{From: "ops@shipper.test", MessageID: "<m1@shipper.test>"}
	res, err := h.Handle(context.Background(), email)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "b1", email.BrokerID)

	res, err = h.Handle(context.Background(), &core.Email{From: "ops@shipper.test", MessageID: "m1@shipper.test"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, core.ActionIgnore, res.Action)
	assert.Len(t, proc.received(), 1)
}

func TestHandler_ReleasesMessageOnFailure(t *testing.T) {
	repo := store.NewMemoryStore(zap.NewNop(), 0, 0)
	proc := &fakeProcessor{err: errors.New("database unavailable")}
	h := NewHandler(proc, repo, NewBrokerResolver(config.IntakeConfig{}), zap.NewNop())

	_, err := h.Handle(context.Background(), &core.Email{MessageID: "<m2@x>"})
	require.Error(t, err)

	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()

	res, err := h.Handle(context.Background(), &core.Email{MessageID: "<m2@x>"})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Len(t, proc.received(), 2)
}

func TestSMTPIntake_DeliversToHandler(t *testing.T) {
	proc := &fakeProcessor{}
	brokers := NewBrokerResolver(config.IntakeConfig{
		DefaultBrokerID: "house",
		Brokers:         map[string]string{"quotes@broker-b.test": "broker-b"},
	})
	h := NewHandler(proc, nil, brokers, zap.NewNop())
	in := NewSMTPIntake(h, newTP(), zap.NewNop(), config.ServerConfig{ListenAddress: "127.0.0.1:0"})
	require.NoError(t, in.Start())
	defer in.Stop()

	c, err := smtp.Dial(in.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Hello("client.test"))
	require.NoError(t, c.Mail("bounce@shipper.test", nil))
	require.NoError(t, c.Rcpt("quotes@broker-b.test", nil))
	wc, err := c.Data()
	require.NoError(t, err)
	_, err = wc.Write(crlf(plainMessage))
	require.NoError(t, err)
	require.NoError(t, wc.Close())
	require.NoError(t, c.Quit())

	got := proc.received()
	require.Len(t, got, 1)
	assert.Equal(t, "broker-b", got[0].BrokerID)
	assert.Equal(t, "ops@shipper.test", got[0].From)
}

func TestSMTPIntake_ProcessingFailureIsTemporary(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("store down")}
	h := NewHandler(proc, nil, NewBrokerResolver(config.IntakeConfig{}), zap.NewNop())
	in := NewSMTPIntake(h, newTP(), zap.NewNop(), config.ServerConfig{ListenAddress: "127.0.0.1:0"})
	require.NoError(t, in.Start())
	defer in.Stop()

	c, err := smtp.Dial(in.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Mail("ops@shipper.test", nil))
	require.NoError(t, c.Rcpt("quotes@broker.test", nil))
	wc, err := c.Data()
	require.NoError(t, err)
	_, err = wc.Write(crlf(plainMessage))
	require.NoError(t, err)

	err = wc.Close()
	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 451, smtpErr.Code)
}

func TestCLIIntake_ProcessFiles(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"a.eml", "b.EML", "notes.txt"} {
		msg := strings.Replace(plainMessage, "abc123", "msg"+string(rune('0'+i)), 1)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), crlf(msg), 0o600))
	}

	files, err := CollectFiles([]string{dir})
	require.NoError(t, err)
	require.Len(t, files, 2)

	proc := &fakeProcessor{result: &core.IntakeResult{
		Action:              core.ActionRequestClarification,
		Reason:              "missing or insufficient information",
		FreightType:         core.FreightDryVan,
		TypeConfidence:      70,
		ClarificationNeeded: []string{"Delivery location"},
	}}
	var out bytes.Buffer
	cli := NewCLIIntake(NewHandler(proc, nil, NewBrokerResolver(config.IntakeConfig{}), zap.NewNop()), newTP(), zap.NewNop(), &out, false, false)

	require.NoError(t, cli.ProcessFiles(context.Background(), files, 2))
	assert.Len(t, proc.received(), 2)
	assert.Contains(t, out.String(), "Action: request_clarification")
	assert.Contains(t, out.String(), "Missing: Delivery location")

	_, err = CollectFiles([]string{filepath.Join(dir, "missing.eml")})
	assert.Error(t, err)
}
