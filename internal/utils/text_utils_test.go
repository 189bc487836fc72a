package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTruncateText_KeepsValidUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	text := strings.Repeat("é", 10)

	out := tp.TruncateText(text, 5)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasPrefix(out, "éé"))
	assert.Contains(t, out, "omitted")

	assert.Equal(t, text, tp.TruncateText(text, 0))
	assert.Equal(t, "short", tp.TruncateText("short", 100))
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
	assert.Equal(t, "ok", tp.SanitizeUTF8("ok"))
}

func TestNormalizeWhitespace(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	in := "Pickup: Dallas   \r\n\r\n\r\n\r\nDelivery: Atlanta\t\n"
	assert.Equal(t, "Pickup: Dallas\n\nDelivery: Atlanta", tp.NormalizeWhitespace(in))
}

func TestHTMLToText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	body := `<html><head><style>p{color:red}</style></head><body>
<p>Need a truck</p><table><tr><td>Origin</td><td>Dallas, TX 75201</td></tr></table>
<script>var x = 1;</script><div>Weight: 42,000 lbs</div></body></html>`

	out := tp.HTMLToText(body)
	assert.Contains(t, out, "Need a truck")
	assert.Contains(t, out, "Origin Dallas, TX 75201")
	assert.Contains(t, out, "Weight: 42,000 lbs")
	assert.NotContains(t, out, "color:red")
	assert.NotContains(t, out, "var x")
}
