package intake

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/utils"
)

const maxMultipartDepth = 5

var wordDecoder = new(mime.WordDecoder)

// ParseMessage turns a raw RFC 5322 message into a core.Email. The broker id
// is left empty for the caller to resolve from the envelope.
func ParseMessage(raw []byte, tp *utils.TextProcessor) (*core.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email message: %w", err)
	}

	body, err := extractTextFromMessage(msg, tp)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text content: %w", err)
	}

	email := &core.Email{
		From:       decodeAddress(msg.Header.Get("From")),
		To:         decodeAddressList(msg.Header, "To"),
		Subject:    decodeEncodedHeader(msg.Header.Get("Subject")),
		Body:       tp.SanitizeUTF8(body),
		MessageID:  strings.TrimSpace(msg.Header.Get("Message-Id")),
		InReplyTo:  strings.TrimSpace(msg.Header.Get("In-Reply-To")),
		References: msg.Header["References"],
		Headers:    make(map[string][]string, len(msg.Header)),
		ReceivedAt: time.Now(),
	}
	if date, err := msg.Header.Date(); err == nil {
		email.ReceivedAt = date
	}
	for k, v := range msg.Header {
		email.Headers[k] = v
	}
	return email, nil
}

// decodeEncodedHeader decodes RFC 2047 encoded words, returning the input on failure
func decodeEncodedHeader(header string) string {
	decoded, err := wordDecoder.DecodeHeader(header)
	if err != nil {
		return strings.TrimSpace(header)
	}
	return strings.TrimSpace(decoded)
}

func decodeAddress(header string) string {
	if header == "" {
		return ""
	}
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return core.NormalizeAddress(decodeEncodedHeader(header))
	}
	return strings.ToLower(addr.Address)
}

func decodeAddressList(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		var out []string
		for _, part := range strings.Split(h.Get(key), ",") {
			if addr := core.NormalizeAddress(part); addr != "" {
				out = append(out, addr)
			}
		}
		return out
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, strings.ToLower(a.Address))
	}
	return out
}

// extractTextFromMessage prefers text/plain content and falls back to the
// visible text of an HTML part
func extractTextFromMessage(msg *mail.Message, tp *utils.TextProcessor) (string, error) {
	plain, html, err := extractPart(textproto.MIMEHeader(msg.Header), msg.Body, 0)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(plain) != "" {
		return plain, nil
	}
	if html != "" {
		return tp.HTMLToText(html), nil
	}
	return plain, nil
}

// extractPart walks one MIME entity and returns the concatenated plain and
// HTML text found in it
func extractPart(header textproto.MIMEHeader, body io.Reader, depth int) (string, string, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" || depth >= maxMultipartDepth {
			return "", "", nil
		}
		return extractMultipart(multipart.NewReader(body, boundary), depth)
	}

	if isAttachment(header) {
		return "", "", nil
	}

	switch mediaType {
	case "text/plain", "text/html":
	default:
		return "", "", nil
	}

	data, err := io.ReadAll(decodeTransfer(header.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s part: %w", mediaType, err)
	}
	if mediaType == "text/html" {
		return "", string(data), nil
	}
	return string(data), "", nil
}

func extractMultipart(mr *multipart.Reader, depth int) (string, string, error) {
	var plain, html strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// keep what was read before the broken part
			if plain.Len() > 0 || html.Len() > 0 {
				break
			}
			return "", "", fmt.Errorf("failed to read multipart body: %w", err)
		}
		p, h, err := extractPart(part.Header, part, depth+1)
		if err != nil {
			continue
		}
		if p != "" {
			plain.WriteString(p)
			plain.WriteString("\n")
		}
		if h != "" {
			html.WriteString(h)
			html.WriteString("\n")
		}
	}
	return plain.String(), html.String(), nil
}

// decodeTransfer undoes the Content-Transfer-Encoding of a part.
// multipart.Reader already decodes quoted-printable parts and drops the header.
func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func isAttachment(header textproto.MIMEHeader) bool {
	disposition, _, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	return err == nil && disposition == "attachment"
}
