package mailmsg

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"
)

const maxMessageBytes = 2 << 20

// Message is one inbound e-mail reduced to what classification and parsing need.
type Message struct {
	UID           uint32
	MessageID     string
	From          string
	SenderAddress string
	Subject       string
	Date          time.Time
	Body          string
}

var headerDecoder = &mime.WordDecoder{CharsetReader: CharsetReader}

// Parse reads a complete RFC 5322 message: headers and a decoded text body.
func Parse(raw []byte) (Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Message{}, fmt.Errorf("empty message")
	}
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	from := DecodeHeader(parsed.Header.Get("From"))
	msg := Message{
		MessageID:     strings.TrimSpace(parsed.Header.Get("Message-Id")),
		From:          from,
		SenderAddress: Address(from),
		Subject:       DecodeHeader(parsed.Header.Get("Subject")),
		Body:          DecodeBody(raw),
	}
	if date, dateErr := parsed.Header.Date(); dateErr == nil {
		msg.Date = date
	}
	return msg, nil
}

// DecodeHeader resolves RFC 2047 encoded words; undecodable input is returned trimmed.
func DecodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}

// Address extracts the lower-cased addr-spec from a From header value.
func Address(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if list, err := mail.ParseAddressList(from); err == nil && len(list) > 0 {
		return strings.ToLower(strings.TrimSpace(list[0].Address))
	}
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return strings.ToLower(strings.TrimSpace(from[start+1 : start+end]))
		}
	}
	return strings.ToLower(from)
}

func ioReadAllLimited(reader io.Reader, maxBytes int64) ([]byte, error) {
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("content exceeds max size")
	}
	return data, nil
}
