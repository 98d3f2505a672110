package mailmsg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParsePlainMessage(t *testing.T) {
	raw := crlf(
		"From: Support <PRD.Support@itsm.example.com>",
		"Subject: =?windows-1251?Q?=CF=F0=E8=E2=E5=F2?=",
		"Message-ID: <msg-1@example.com>",
		"Date: Tue, 12 Mar 2024 10:15:00 +0300",
		"Content-Type: text/plain; charset=windows-1251",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"=CF=F0=E8=E2=E5=F2",
		"",
	)
	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "Привет", msg.Subject)
	assert.Equal(t, "Привет", msg.Body)
	assert.Equal(t, "<msg-1@example.com>", msg.MessageID)
	assert.Equal(t, "prd.support@itsm.example.com", msg.SenderAddress)
	assert.Equal(t, "Support <PRD.Support@itsm.example.com>", msg.From)
	assert.True(t, msg.Date.Equal(time.Date(2024, 3, 12, 7, 15, 0, 0, time.UTC)))
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse([]byte("  \r\n"))
	assert.Error(t, err)
}

func TestDecodeBodyBase64(t *testing.T) {
	raw := crlf(
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8g",
		"d29ybGQ=",
		"",
	)
	assert.Equal(t, "Hello world", DecodeBody(raw))
}

func TestDecodeBodyMultipartPrefersPlain(t *testing.T) {
	raw := crlf(
		"Content-Type: multipart/alternative; boundary=\"b1\"",
		"",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>HTML version</p>",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Plain version",
		"--b1--",
		"",
	)
	assert.Equal(t, "Plain version", DecodeBody(raw))
}

func TestDecodeBodyHTMLKeepsLines(t *testing.T) {
	raw := crlf(
		"Content-Type: multipart/mixed; boundary=\"b2\"",
		"",
		"--b2",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><style>p { color: red; }</style><body>",
		"<p>Line   one</p><p>Line &amp; two</p>Tail<br/>End",
		"</body></html>",
		"--b2",
		"Content-Type: text/plain",
		"Content-Disposition: attachment; filename=\"notes.txt\"",
		"",
		"attached text",
		"--b2--",
		"",
	)
	assert.Equal(t, "Line one\nLine & two\nTail\nEnd", DecodeBody(raw))
}

func TestAddress(t *testing.T) {
	cases := map[string]string{
		"no-reply.monitoring@example.com":              "no-reply.monitoring@example.com",
		"Monitoring <No-Reply.Monitoring@Example.com>": "no-reply.monitoring@example.com",
		"\"Служба, ITSM\" <prd.support@itsm.example.com>": "prd.support@itsm.example.com",
		"": "",
	}
	for input, expected := range cases {
		assert.Equal(t, expected, Address(input), input)
	}
}

func TestCharsetReaderUnknown(t *testing.T) {
	_, err := CharsetReader("x-unknown-charset", strings.NewReader("abc"))
	assert.Error(t, err)

	reader, err := CharsetReader("UTF-8", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.NotNil(t, reader)
}
